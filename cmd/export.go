package cmd

import (
	"encoding/json"
	"fmt"
	"log"

	sw "github.com/filanov/stateswitch"
	"github.com/metal-toolbox/placer/internal/compat"
	"github.com/spf13/cobra"

	"github.com/emicklei/dot"
)

type exportFlags struct {
	json bool
	dot  bool
}

var (
	exportFlagSet = &exportFlags{}
)

var cmdExportStatemachine = &cobra.Command{
	Use:   "export-statemachine [--json|--dot]",
	Short: "Export the unit occupancy statemachine, in the mermaid format by default",
	Run: func(_ *cobra.Command, _ []string) {
		exportStatemachine()
	},
}

func asGraph(s *sw.StateMachineJSON) *dot.Graph {
	g := dot.NewGraph(dot.Directed)
	nodes := map[string]dot.Node{}

	for _, transition := range s.TransitionRules {
		_, exists := nodes[transition.DestinationState]
		if !exists {
			nodes[transition.DestinationState] = g.Node(transition.DestinationState)
		}

		for _, sourceState := range transition.SourceStates {
			_, exists := nodes[sourceState]
			if !exists {
				nodes[sourceState] = g.Node(sourceState)
			}

			g.Edge(nodes[sourceState], nodes[transition.DestinationState], transition.Name)
		}
	}

	return g
}

func occupancyGraph() ([]byte, *dot.Graph, error) {
	j, err := compat.NewOccupancyStateMachine().AsJSON()
	if err != nil {
		return nil, nil, err
	}

	t := &sw.StateMachineJSON{}
	if err := json.Unmarshal(j, t); err != nil {
		return nil, nil, err
	}

	return j, asGraph(t), nil
}

func exportStatemachine() {
	j, g, err := occupancyGraph()
	if err != nil {
		log.Fatal(err)
	}

	switch {
	case exportFlagSet.json:
		fmt.Println(string(j))
	case exportFlagSet.dot:
		fmt.Println(g.String())
	default:
		fmt.Println(dot.MermaidGraph(g, dot.MermaidTopDown))
	}
}

func init() {
	cmdExportStatemachine.PersistentFlags().BoolVarP(&exportFlagSet.json, "json", "", false, "export the statemachine in the JSON format")
	cmdExportStatemachine.PersistentFlags().BoolVarP(&exportFlagSet.dot, "dot", "", false, "export the statemachine in the graphviz dot format")

	rootCmd.AddCommand(cmdExportStatemachine)
}
