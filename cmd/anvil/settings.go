package main

import (
	"github.com/spf13/cobra"

	"github.com/jbweber/anvil/internal/output"
	"github.com/jbweber/anvil/internal/vm"
)

var memoryCmd = &cobra.Command{
	Use:   "memory <endpoint> <name> [mb]",
	Short: "Show or set a VM's memory in MB",
	Long: `Show a VM's memory allocation, or set it when a value is given.
Setting memory requires the VM to be shut off.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		attrs := vm.Attributes{vm.AttrName: args[1]}

		var (
			mb  uint64
			err error
		)
		if len(args) == 3 {
			attrs[vm.AttrMemory] = args[2]
			mb, err = cli.ctrl.SetMemory(cmd.Context(), args[0], attrs)
		} else {
			mb, err = cli.ctrl.GetMemory(cmd.Context(), args[0], attrs)
		}
		if err != nil {
			return err
		}
		return cli.print(cmd, output.Record{"name": args[1], "memory": mb})
	},
}

var vcpusCmd = &cobra.Command{
	Use:   "vcpus <endpoint> <name> [count]",
	Short: "Show or set a VM's vCPU count",
	Long: `Show a running VM's vCPU count, or set it on a shut off VM when a
value is given.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		attrs := vm.Attributes{vm.AttrName: args[1]}

		var (
			n   int
			err error
		)
		if len(args) == 3 {
			attrs[vm.AttrNumCPU] = args[2]
			n, err = cli.ctrl.SetVCPUs(cmd.Context(), args[0], attrs)
		} else {
			n, err = cli.ctrl.GetVCPUs(cmd.Context(), args[0], attrs)
		}
		if err != nil {
			return err
		}
		return cli.print(cmd, output.Record{"name": args[1], "num_cpu": n})
	},
}

var diskSizeUnit string

var diskSizeCmd = &cobra.Command{
	Use:   "disk-size <endpoint> <storage-name> [size]",
	Short: "Show or change a disk volume's size",
	Long: `Show the capacity of <storage-name>.img, or resize it when a size is
given. A bare number uses --unit; sizes like 40G or 40GiB carry their own.

Shrinking discards data past the new end of the image. Shrink the guest
filesystem first.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		attrs := vm.Attributes{vm.AttrStorageName: args[1]}

		var (
			size uint64
			err  error
		)
		if len(args) == 3 {
			attrs[vm.AttrDiskSize] = args[2]
			attrs[vm.AttrDiskSizeUnit] = diskSizeUnit
			size, err = cli.ctrl.SetDiskSize(cmd.Context(), args[0], attrs)
		} else {
			size, err = cli.ctrl.GetDiskSize(cmd.Context(), args[0], attrs)
		}
		if err != nil {
			return err
		}
		return cli.print(cmd, output.Record{"storage_name": args[1], "disk_size": size})
	},
}

func init() {
	diskSizeCmd.Flags().StringVar(&diskSizeUnit, "unit", "G", "unit for a bare size: k, K, M, G or T")
}

var vncCmd = &cobra.Command{
	Use:   "vnc <endpoint> <name>",
	Short: "Show where to reach a VM's VNC display",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		attrs := vm.Attributes{vm.AttrName: args[1]}

		port, err := cli.ctrl.GetVNCPort(cmd.Context(), args[0], attrs)
		if err != nil {
			return err
		}
		host, err := cli.ctrl.GetVNCHostname(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return cli.print(cmd, output.Record{"name": args[1], "vnc_port": port, "vnc_hostname": host})
	},
}
