// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"srcbench-cli/internal/store"
)

var showCmd = &cobra.Command{
	Use:   "show <commit>",
	Short: "Show the stored benchmark record for a commit",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	st, err := store.Open(viper.GetString("bench_data_dir"), viper.GetString("db_name"))
	if err != nil {
		return err
	}
	defer st.Close()

	record, ok, err := st.Get(args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no benchmark record stored for commit %q", args[0])
	}

	fmt.Fprintln(cmd.OutOrStdout(),
		SubtitleStyle.Render("benchmarked "+record.StartedAt.Format("2006-01-02 15:04")+
			", commit date "+record.Revision.CommitDate.Format("2006-01-02")))
	printRecord(cmd, record)
	return nil
}
