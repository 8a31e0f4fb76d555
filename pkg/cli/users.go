package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nimburion/userdirectory/pkg/directory"
)

func newUsersCommand(env *environment) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user records in the configured storage",
	}

	createCmd := env.userCommand("create [--] NAME AGE", "Create a user", cobra.ExactArgs(2), func(rt *runtime, args []string) error {
		age, err := parseInt("age", args[1])
		if err != nil {
			return err
		}
		if !rt.service.CreateRecord(args[0], age) {
			return rt.failure("create user")
		}
		fmt.Fprintf(rt.cmd.OutOrStdout(), "created %s (users: %d)\n", args[0], rt.service.CountRecords())
		return nil
	})
	createCmd.Example = "  userdir users create Alice 25\n  userdir users create -- Alice -1"

	updateCmd := env.userCommand("update [--] ID NAME AGE", "Replace a user's name and age", cobra.ExactArgs(3), func(rt *runtime, args []string) error {
		id, err := parseInt("id", args[0])
		if err != nil {
			return err
		}
		age, err := parseInt("age", args[2])
		if err != nil {
			return err
		}
		if !rt.service.UpdateRecord(id, args[1], age) {
			return rt.failure(fmt.Sprintf("update user %d", id))
		}
		fmt.Fprintf(rt.cmd.OutOrStdout(), "updated %d\n", id)
		return nil
	})
	updateCmd.Example = "  userdir users update 2 Robert 31\n  userdir users update -- 2 Robert -1"

	usersCmd.AddCommand(
		createCmd,
		env.userCommand("get ID", "Show a user summary", cobra.ExactArgs(1), func(rt *runtime, args []string) error {
			id, err := parseInt("id", args[0])
			if err != nil {
				return err
			}
			summary := rt.service.FetchSummary(id)
			if summary == "" {
				return rt.failure(fmt.Sprintf("get user %d", id))
			}
			fmt.Fprintln(rt.cmd.OutOrStdout(), summary)
			return nil
		}),
		updateCmd,
		env.userCommand("delete ID", "Delete a user", cobra.ExactArgs(1), func(rt *runtime, args []string) error {
			id, err := parseInt("id", args[0])
			if err != nil {
				return err
			}
			if !rt.service.RemoveRecord(id) {
				return rt.failure(fmt.Sprintf("delete user %d", id))
			}
			fmt.Fprintf(rt.cmd.OutOrStdout(), "deleted %d\n", id)
			return nil
		}),
		env.userCommand("count", "Print the number of users", cobra.NoArgs, func(rt *runtime, _ []string) error {
			// Backends report a failed count as 0 with a last error.
			rt.backend.ClearError()
			count := rt.service.CountRecords()
			if count == directory.CountUnavailable || rt.backend.GetLastError() != "" {
				return rt.failure("count users")
			}
			fmt.Fprintln(rt.cmd.OutOrStdout(), count)
			return nil
		}),
		env.userCommand("list", "List user names in id order", cobra.NoArgs, func(rt *runtime, _ []string) error {
			names, ok := rt.service.ListNames()
			if !ok {
				return rt.failure("list users")
			}
			for _, name := range names {
				fmt.Fprintln(rt.cmd.OutOrStdout(), name)
			}
			return nil
		}),
		env.userCommand("query QUERY", "Run a storage-native query and print one row per line", cobra.MinimumNArgs(1), func(rt *runtime, args []string) error {
			rows, ok := rt.backend.ExecuteQuery(strings.Join(args, " "))
			if !ok {
				return rt.failure("query")
			}
			for _, row := range rows {
				fmt.Fprintln(rt.cmd.OutOrStdout(), row)
			}
			return nil
		}),
	)
	return usersCmd
}

// userCommand wraps run with config loading, connection and teardown.
func (e *environment) userCommand(use, short string, args cobra.PositionalArgs, run func(rt *runtime, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := e.start(cmd)
			if err != nil {
				return err
			}
			defer rt.close(e.flags.printMetrics)

			if err := rt.connect(); err != nil {
				return err
			}
			return run(rt, args)
		},
	}
}

func parseInt(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be an integer", name, value)
	}
	return n, nil
}
