package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/ayusman/autoselfie/internal/detector"
)

var variantsCmd = &cobra.Command{
	Use:   "variants",
	Short: "Show host capabilities and the detector runtime that would be loaded",
	Run: func(cmd *cobra.Command, args []string) {
		runVariants()
	},
}

func init() {
	rootCmd.AddCommand(variantsCmd)
}

func runVariants() {
	caps := detector.ProbeCapabilities()
	available := cfg.DetectorConfig().Variants

	fmt.Printf("OpenCV:   %s\n", gocv.OpenCVVersion())
	fmt.Printf("Parallel: %t\n", caps.Parallel)
	fmt.Printf("Vector:   %t\n\n", caps.Vector)

	names := make([]string, 0, len(available))
	for v := range available {
		names = append(names, string(v))
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tSUPPORTED\tPATH")
	fmt.Fprintln(w, "-------\t---------\t----")
	for _, name := range names {
		v := detector.Variant(name)
		fmt.Fprintf(w, "%s\t%t\t%s\n", v, caps.Supports(v), available[v])
	}
	w.Flush()

	if v, p, ok := detector.SelectVariant(available, caps); ok {
		fmt.Printf("\nSelected: %s (%s)\n", v, p)
	} else {
		fmt.Println("\nSelected: none, initialization would fail")
	}
}
