package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var semestersCmd = &cobra.Command{
	Use:   "semesters",
	Short: "List imported semesters, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		semesters, err := e.Store.ListSemesters(cmd.Context())
		if err != nil {
			return err
		}
		if len(semesters) == 0 {
			fmt.Println("no semesters imported")
			return nil
		}
		for _, s := range semesters {
			fmt.Println(s)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(semestersCmd)
}
