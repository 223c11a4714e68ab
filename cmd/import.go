package cmd

import (
	"fmt"

	"stemdeck/config"
	"stemdeck/core/audio"
	"stemdeck/core/importer"
	"stemdeck/db"
	"stemdeck/logger"
	"stemdeck/repository"

	"github.com/spf13/cobra"
)

var (
	importTitle  string
	importArtist string
	importKey    string
	importTempo  float64
)

var importCmd = &cobra.Command{
	Use:   "import [files...]",
	Short: "Import audio files as the stems of one new song.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		logger.Init(logger.Config{Level: cfg.LogLevel})

		if err := db.ConnectDB(cfg); err != nil {
			return err
		}
		defer db.CloseDB()
		if err := db.InitDB(); err != nil {
			return err
		}

		prober := audio.NewDecoder(cfg.SampleRate)
		im := importer.NewImporter(
			prober,
			repository.NewSongRepository(db.DB),
			repository.NewStemRepository(db.DB),
			func(current, total int) {
				fmt.Printf("\rimporting %d/%d", current, total)
			},
		)

		req := importer.Request{
			Paths:  args,
			Title:  importTitle,
			Artist: importArtist,
			Key:    importKey,
		}
		if cmd.Flags().Changed("tempo") {
			req.Tempo = &importTempo
		}

		songID, err := im.Import(req)
		if err != nil {
			fmt.Println()
			return err
		}
		fmt.Printf("\nimported song %s (%d stems)\n", songID, len(args))
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importTitle, "title", "", "song title (required)")
	importCmd.Flags().StringVar(&importArtist, "artist", "", "artist name")
	importCmd.Flags().StringVar(&importKey, "key", "", "musical key")
	importCmd.Flags().Float64Var(&importTempo, "tempo", 0, "tempo in BPM")
	importCmd.MarkFlagRequired("title")
	rootCmd.AddCommand(importCmd)
}
