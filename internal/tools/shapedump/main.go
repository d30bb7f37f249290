// Copyright 2025 Reify Labs, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// shapedump prints the compiled layout of a menu of example shapes: kind,
// size, alignment, variance and per-slot offsets. It exists so layout
// regressions show up as a readable diff instead of a failing offset
// assertion three packages away.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reifylabs/reify"
)

// Example shapes covering every def kind the compiler produces.
type address struct {
	Street string `reify:"street"`
	City   string `reify:"city"`
	Zip    string `reify:"zip,sensitive"`
}

type person struct {
	Name    string            `reify:"name"`
	Age     int32             `reify:"age"`
	Email   reify.Option[string]
	Home    *address
	Tags    []string
	Scores  map[string]int64
	Aliases map[string]struct{}
}

type suit struct {
	kind  uint8
	color string
	pip   int32
}

func shapes() map[string]*reify.Shape {
	enum := reify.NewEnumShape[suit]("Suit", "kind",
		reify.UnitVariant("Joker", 0),
		reify.StructVariant("Face", 1,
			reify.VariantField{Name: "color", Backing: "color"}),
		reify.TupleVariant("Pip", 2, "pip"),
	)
	return map[string]*reify.Shape{
		"person":  reify.For[person](),
		"address": reify.For[address](),
		"suit":    enum,
		"uuid":    reify.UUIDShape(),
		"time":    reify.TimeShape(),
		"result":  reify.For[reify.Result[int64, string]](),
	}
}

var rootCmd = &cobra.Command{
	Use:   "shapedump [shape...]",
	Short: "Dump compiled shape layouts",
	RunE: func(cmd *cobra.Command, args []string) error {
		all := shapes()

		names := args
		if len(names) == 0 {
			for name := range all {
				names = append(names, name)
			}
			sort.Strings(names)
		}

		verbose := viper.GetBool("verbose")
		for _, name := range names {
			s, ok := all[name]
			if !ok {
				return fmt.Errorf("unknown shape %q (have: %s)",
					name, strings.Join(known(all), ", "))
			}
			fmt.Print(s.Dump())
			if verbose {
				fmt.Printf("  decl=%s sized=%v\n", s.Decl(), s.Sized())
			}
		}
		return nil
	},
}

func known(all map[string]*reify.Shape) []string {
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	rootCmd.Flags().BoolP("verbose", "v", false, "print declaration identity and sizedness")
	_ = viper.BindPFlag("verbose", rootCmd.Flags().Lookup("verbose"))
	viper.SetEnvPrefix("shapedump")
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
