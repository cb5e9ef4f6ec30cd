package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/anvil/internal/errdefs"
	"github.com/jbweber/anvil/internal/loader"
	"github.com/jbweber/anvil/internal/status"
	"github.com/jbweber/anvil/internal/vm"
)

var getCmd = &cobra.Command{
	Use:   "get <endpoint> <name>",
	Short: "Describe a VM",
	Long:  `Show a VM's state, memory, vCPUs and VNC display.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		desc := cli.res.Read(cmd.Context(), args[0], map[string]any{vm.AttrName: args[1]})
		if len(desc) == 0 {
			return errdefs.NotFoundf("VM %s not found on %s", args[1], args[0])
		}
		return cli.print(cmd, desc[0])
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <endpoint> <name>",
	Short: "Show a VM's state",
	Long: `Show a VM's state. Unknown endpoints, unreachable hypervisors and
missing VMs all report the unknown state.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		state := cli.ctrl.GetStatus(cmd.Context(), args[0], vm.Attributes{vm.AttrName: args[1]})
		return cli.print(cmd, vm.Status{Name: args[1], State: state}.Map())
	},
}

var createFlags struct {
	file         string
	sets         []string
	autounattend string
}

var createCmd = &cobra.Command{
	Use:   "create <endpoint> [name]",
	Short: "Create a VM",
	Long: `Create a disk volume and a VM on an endpoint.

Attributes come from an optional YAML or JSON file, then --set overrides.
A name argument overrides both. --autounattend embeds a Windows answer file
in installation media attached to the VM.

Example:
  anvil create hv1 -f web1.yaml --set memory=4096`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		attrs, err := createAttributes(args)
		if err != nil {
			return err
		}

		cli.log.Info("Creating VM...", "endpoint", args[0], "vm", attrs[vm.AttrName])
		st, err := cli.res.Create(cmd.Context(), args[0], attrs)
		if err != nil {
			return fmt.Errorf("failed to create VM: %w", err)
		}
		return cli.print(cmd, st)
	},
}

func init() {
	createCmd.Flags().StringVarP(&createFlags.file, "file", "f", "", "attribute file (YAML or JSON)")
	createCmd.Flags().StringArrayVar(&createFlags.sets, "set", nil, "attribute override as key=value (repeatable)")
	createCmd.Flags().StringVar(&createFlags.autounattend, "autounattend", "", "answer file to embed in installation media")
}

// createAttributes layers the attribute file, --set overrides, the
// answer file and the name argument.
func createAttributes(args []string) (map[string]any, error) {
	base := map[string]any{}
	if createFlags.file != "" {
		var err error
		if base, err = loader.LoadFromFile(createFlags.file); err != nil {
			return nil, err
		}
	}

	sets, err := loader.ParseSets(createFlags.sets)
	if err != nil {
		return nil, err
	}
	attrs := loader.Merge(base, sets)

	if createFlags.autounattend != "" {
		payload, err := loader.LoadPayload(createFlags.autounattend)
		if err != nil {
			return nil, err
		}
		attrs[vm.AttrAutounattend] = payload
	}
	if len(args) > 1 {
		attrs[vm.AttrName] = args[1]
	}
	return attrs, nil
}

var deleteVolumes bool

var deleteCmd = &cobra.Command{
	Use:   "delete <endpoint> <name>",
	Short: "Delete a VM",
	Long: `Delete a virtual machine by name.

This will:
- Delete its disks and installation media (with --delete-volumes)
- Force stop the VM if running
- Undefine the domain`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cli.log.Info("Deleting VM...", "endpoint", args[0], "vm", args[1])
		st, err := cli.res.Delete(cmd.Context(), args[0], map[string]any{
			vm.AttrName:          args[1],
			vm.AttrDeleteVolumes: deleteVolumes,
		})
		if err != nil {
			return fmt.Errorf("failed to delete VM: %w", err)
		}
		return cli.print(cmd, st)
	},
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteVolumes, "delete-volumes", false, "also delete the VM's disks and media")
}

var transitionHelp = map[status.Transition]string{
	status.TransitionStart:    "Start a stopped VM",
	status.TransitionShutdown: "Ask a running VM to power off",
	status.TransitionShutoff:  "Power a running VM off immediately",
	status.TransitionReboot:   "Ask a running VM to restart",
	status.TransitionPause:    "Pause a running VM",
	status.TransitionResume:   "Resume a paused VM",
}

// transitionCmds returns one command per lifecycle transition.
func transitionCmds() []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(status.Transitions))
	for _, t := range status.Transitions {
		cmds = append(cmds, &cobra.Command{
			Use:   string(t) + " <endpoint> <name>",
			Short: transitionHelp[t],
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := cli.ctrl.Transition(cmd.Context(), args[0], vm.Attributes{vm.AttrName: args[1]}, t)
				if err != nil {
					return err
				}
				return cli.print(cmd, st.Map())
			},
		})
	}
	return cmds
}
