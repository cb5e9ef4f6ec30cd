package main

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/jbweber/anvil/internal/output"
	"github.com/jbweber/anvil/internal/status"
)

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "List configured hypervisor endpoints",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.printAll(cmd, cli.res.Read(cmd.Context(), "", nil))
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check which endpoints are reachable",
	Long: `Connect to every configured endpoint concurrently and report whether
it answers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		alive := cli.res.Ping(cmd.Context())

		ids := make([]string, 0, len(alive))
		for id := range alive {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		rs := make([]output.Record, 0, len(ids))
		for _, id := range ids {
			rs = append(rs, output.Record{"id": id, "alive": alive[id]})
		}
		return cli.printAll(cmd, rs)
	},
}

var listState string

var listCmd = &cobra.Command{
	Use:   "list <endpoint>",
	Short: "List VMs on an endpoint",
	Long: `List all virtual machines, running and stopped, on an endpoint.

Shows VM name, state, vCPUs and memory. --state keeps only VMs in the
named state (running, paused, shutoff, ...).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			want   status.State
			filter = listState != ""
		)
		if filter {
			var err error
			if want, err = status.ParseState(listState); err != nil {
				return err
			}
		}

		vms, err := cli.ctrl.List(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		rs := make([]output.Record, 0, len(vms))
		for _, v := range vms {
			if filter && v.State != want {
				continue
			}
			rs = append(rs, output.Record{
				"name":       v.Name,
				"state":      int(v.State),
				"state_name": v.State.String(),
				"num_cpu":    v.CPUs,
				"memory":     v.MemoryMB,
			})
		}
		return cli.printAll(cmd, rs)
	},
}

func init() {
	listCmd.Flags().StringVar(&listState, "state", "", "only list VMs in this state")
}
