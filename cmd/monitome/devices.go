package main

import (
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func (c *cli) devicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return c.printDevices()
		},
	}
}

// printDevices renders the host's audio devices as a table on stdout.
func (c *cli) printDevices() error {
	devs, err := c.listDevices()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(c.stdout)
	table.SetHeader([]string{"Index", "Name", "Host API", "In", "Out", "Rate", "Default"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")

	for _, d := range devs {
		var defaults []string
		if d.IsDefaultInput {
			defaults = append(defaults, "input")
		}
		if d.IsDefaultOutput {
			defaults = append(defaults, "output")
		}
		table.Append([]string{
			strconv.Itoa(d.Index),
			d.Name,
			d.HostAPI,
			strconv.Itoa(d.MaxInputChannels),
			strconv.Itoa(d.MaxOutputChannels),
			strconv.FormatFloat(d.DefaultSampleRate, 'f', 0, 64),
			strings.Join(defaults, ","),
		})
	}
	table.Render()
	return nil
}
