package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"churchledger/internal/core"
)

func wordsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "words AMOUNT",
		Short: "Spell a whole amount in English",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := core.ParseWholeAmount(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", core.FormatAmount(n, ""), core.AmountInWords(n))
			return err
		},
	}
}
