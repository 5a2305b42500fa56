package main

import (
	"fmt"

	"github.com/badgecnn/bridge/internal/model"
	"github.com/badgecnn/bridge/internal/serialization"
	"github.com/spf13/cobra"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(a.out, "badgecnn %s (%s, %d classes, .born v%d)\n",
				version, model.Name, model.NumClasses, serialization.FormatVersionV2)
		},
	}
}
