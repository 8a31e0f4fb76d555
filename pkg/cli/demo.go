package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nimburion/userdirectory/pkg/calculator"
	"github.com/nimburion/userdirectory/pkg/config"
)

func newDemoCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Walk through the calculator and an in-memory user directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := env.loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			cfg.Storage.Type = config.StorageTypeMemory
			cfg.Storage.URL = "memory://demo"

			out := cmd.OutOrStdout()
			if err := calculatorDemo(out); err != nil {
				return err
			}

			rt, err := env.startWith(cmd, cfg)
			if err != nil {
				return err
			}
			defer rt.close(env.flags.printMetrics)
			return directoryDemo(out, rt)
		},
	}
}

func calculatorDemo(out io.Writer) error {
	calc := calculator.New()

	fmt.Fprintln(out, "User Directory Sample")
	fmt.Fprintln(out, "=====================")

	fmt.Fprintln(out, "\nCalculator Demo:")
	fmt.Fprintf(out, "5 + 3 = %d\n", calc.Add(5, 3))
	fmt.Fprintf(out, "10 - 4 = %d\n", calc.Subtract(10, 4))
	fmt.Fprintf(out, "6 * 7 = %d\n", calc.Multiply(6, 7))
	quotient, err := calc.Divide(15, 3)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "15.0 / 3.0 = %g\n", quotient)

	fmt.Fprintln(out, "\nBoolean operations:")
	fmt.Fprintf(out, "Is 5 positive? %s\n", yesNo(calc.IsPositive(5)))
	fmt.Fprintf(out, "Is 4 even? %s\n", yesNo(calc.IsEven(4)))

	fmt.Fprintln(out, "\nString operations:")
	fmt.Fprintf(out, "Concatenate 'Hello' + ' World': %s\n", calc.Concatenate("Hello", " World"))
	fmt.Fprintf(out, "Uppercase 'test': %s\n", calc.ToUpperCase("test"))
	return nil
}

func directoryDemo(out io.Writer, rt *runtime) error {
	fmt.Fprintln(out, "\nUser Directory Demo:")
	fmt.Fprintf(out, "Count before initialize: %d\n", rt.service.CountRecords())

	if err := rt.connect(); err != nil {
		return err
	}
	for _, u := range []struct {
		name string
		age  int
	}{{"Alice", 25}, {"Bob", 30}, {"Charlie", 35}} {
		if !rt.service.CreateRecord(u.name, u.age) {
			return rt.failure("create " + u.name)
		}
	}
	fmt.Fprintf(out, "Created 3 users, count = %d\n", rt.service.CountRecords())
	fmt.Fprintf(out, "User 1: %s\n", rt.service.FetchSummary(1))

	if !rt.service.UpdateRecord(2, "Robert", 31) {
		return rt.failure("update user 2")
	}
	fmt.Fprintf(out, "User 2 after update: %s\n", rt.service.FetchSummary(2))

	if !rt.service.RemoveRecord(3) {
		return rt.failure("remove user 3")
	}
	names, _ := rt.service.ListNames()
	fmt.Fprintf(out, "Remaining users: %v\n", names)
	return nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
