package cmd

import (
	"fmt"

	"stemdeck/core/audio"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List host audio output devices.",
	RunE: func(cmd *cobra.Command, args []string) error {
		mixer := audio.NewMixer()
		output, err := audio.NewOutputDriver(mixer, nil)
		if err != nil {
			return err
		}
		defer output.Close()

		devices, err := output.Devices()
		if err != nil {
			return err
		}
		for _, device := range devices {
			marker := " "
			if device.IsDefault {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, device.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
