// Package graph turns run results into a small knowledge graph that can be
// written as graph.json or exported to Neo4j.
package graph

import (
	"fmt"
	"strings"

	"github.com/thesipincafe/site-e2e/e2e/framework/fault"
	"github.com/thesipincafe/site-e2e/e2e/framework/results"
)

// Node types.
const (
	NodeRun       = "run"
	NodeScenario  = "scenario"
	NodeViewport  = "viewport"
	NodeStep      = "step"
	NodeAssertion = "assertion"
	NodeFailure   = "failure"
	NodeBrowser   = "browser"
	NodeTag       = "tag"
)

// Edge types.
const (
	EdgeHasScenario  = "HAS_SCENARIO"
	EdgeRanOn        = "RAN_ON"
	EdgeUsesBrowser  = "USES_BROWSER"
	EdgeTagged       = "TAGGED"
	EdgeExecuted     = "EXECUTED"
	EdgeRecorded     = "RECORDED"
	EdgeFailedWith   = "FAILED_WITH"
	EdgeNextStep     = "NEXT"
	EdgeScenarioTest = "RUN_OF"
)

// Node represents a graph node.
type Node struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Label      string                 `json:"label,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Edge represents a graph edge.
type Edge struct {
	From       string                 `json:"from"`
	To         string                 `json:"to"`
	Type       string                 `json:"type"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Graph is a lightweight knowledge graph for test results.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	index map[string]int
}

// AddNode adds a node to the graph if it does not exist.
func (g *Graph) AddNode(node Node) {
	if g.index == nil {
		g.index = make(map[string]int, len(g.Nodes))
		for i, existing := range g.Nodes {
			g.index[existing.ID] = i
		}
	}
	if _, ok := g.index[node.ID]; ok {
		return
	}
	g.index[node.ID] = len(g.Nodes)
	g.Nodes = append(g.Nodes, node)
}

// Node returns the node with id, if present.
func (g *Graph) Node(id string) (Node, bool) {
	if g.index == nil {
		for _, node := range g.Nodes {
			if node.ID == id {
				return node, true
			}
		}
		return Node{}, false
	}
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

// AddEdge adds an edge to the graph.
func (g *Graph) AddEdge(edge Edge) {
	g.Edges = append(g.Edges, edge)
}

// EdgesOf returns the edges of the given type leaving from.
func (g *Graph) EdgesOf(from, edgeType string) []Edge {
	var out []Edge
	for _, edge := range g.Edges {
		if edge.From == from && edge.Type == edgeType {
			out = append(out, edge)
		}
	}
	return out
}

// RunInfo describes the environment a run executed in.
type RunInfo struct {
	Browser  string
	BaseURL  string
	Headless bool
}

// FromRun builds the results graph of a finished run.
func FromRun(run *results.RunResult, info RunInfo) *Graph {
	g := &Graph{}
	runID := "run:" + run.RunID
	g.AddNode(Node{ID: runID, Type: NodeRun, Label: run.RunID, Attributes: map[string]interface{}{
		"start":    run.StartTime,
		"duration": run.Duration.String(),
		"base_url": info.BaseURL,
		"headless": info.Headless,
	}})
	if info.Browser != "" {
		browserID := "browser:" + info.Browser
		g.AddNode(Node{ID: browserID, Type: NodeBrowser, Label: info.Browser})
		g.AddEdge(Edge{From: runID, To: browserID, Type: EdgeUsesBrowser})
	}

	for i := range run.Scenarios {
		addScenario(g, runID, info, &run.Scenarios[i])
	}
	return g
}

func addScenario(g *Graph, runID string, info RunInfo, sc *results.ScenarioResult) {
	scenarioID := fmt.Sprintf("%s/scenario:%s", runID, sc.Name)
	g.AddNode(Node{ID: scenarioID, Type: NodeScenario, Label: sc.Name, Attributes: map[string]interface{}{
		"status":      string(sc.Status),
		"duration_ms": sc.Duration.Milliseconds(),
		"base_url":    sc.BaseURL,
		"browser":     info.Browser,
		"error":       sc.Error,
		"phases":      phaseTrace(sc.Phases),
	}})
	g.AddEdge(Edge{From: runID, To: scenarioID, Type: EdgeHasScenario})

	// Stable scenario identity across runs, used for flakiness queries.
	testID := "test:" + sc.Name
	g.AddNode(Node{ID: testID, Type: "test", Label: sc.Name})
	g.AddEdge(Edge{From: scenarioID, To: testID, Type: EdgeScenarioTest})

	for _, tag := range sc.Tags {
		tagID := "tag:" + tag
		g.AddNode(Node{ID: tagID, Type: NodeTag, Label: tag})
		g.AddEdge(Edge{From: scenarioID, To: tagID, Type: EdgeTagged})
	}

	viewportIDs := map[string]string{}
	viewportNode := func(name string) string {
		if name == "" {
			return scenarioID
		}
		if id, ok := viewportIDs[name]; ok {
			return id
		}
		id := fmt.Sprintf("%s/viewport:%s", scenarioID, name)
		g.AddNode(Node{ID: id, Type: NodeViewport, Label: name, Attributes: map[string]interface{}{"viewport": name}})
		g.AddEdge(Edge{From: scenarioID, To: id, Type: EdgeRanOn})
		viewportIDs[name] = id
		return id
	}
	for _, name := range sc.Viewports {
		viewportNode(name)
	}

	stepIDs := map[string]string{}
	var previous string
	for i, step := range sc.Steps {
		parent := viewportNode(step.Viewport)
		stepID := fmt.Sprintf("%s/step:%03d", parent, i)
		attrs := map[string]interface{}{
			"action":      step.Action,
			"status":      string(step.Status),
			"duration_ms": step.Duration.Milliseconds(),
			"viewport":    step.Viewport,
		}
		if step.Error != "" {
			attrs["error"] = step.Error
			attrs["error_kind"] = step.ErrorKind
		}
		g.AddNode(Node{ID: stepID, Type: NodeStep, Label: step.Name, Attributes: attrs})
		g.AddEdge(Edge{From: parent, To: stepID, Type: EdgeExecuted})
		if previous != "" && sameParent(previous, stepID) {
			g.AddEdge(Edge{From: previous, To: stepID, Type: EdgeNextStep})
		}
		previous = stepID
		stepIDs[step.Viewport+"\x00"+step.Name] = stepID
		if step.ErrorKind != "" {
			addFailure(g, stepID, Categorize(step.ErrorKind), step.Error)
		}
	}

	for i, assertion := range sc.Assertions {
		parent, ok := stepIDs[assertion.Viewport+"\x00"+assertion.Step]
		if !ok {
			parent = viewportNode(assertion.Viewport)
		}
		status := string(results.StatusPassed)
		if !assertion.Passed {
			status = string(results.StatusFailed)
		}
		assertionID := fmt.Sprintf("%s/assertion:%03d", scenarioID, i)
		g.AddNode(Node{ID: assertionID, Type: NodeAssertion, Label: assertion.Description, Attributes: map[string]interface{}{
			"status":   status,
			"kind":     assertion.Kind,
			"expected": assertion.Expected,
			"actual":   assertion.Actual,
			"viewport": assertion.Viewport,
			"step":     assertion.Step,
		}})
		g.AddEdge(Edge{From: parent, To: assertionID, Type: EdgeRecorded})
		if !assertion.Passed {
			addFailure(g, assertionID, Categorize(assertion.Kind), assertion.Actual)
		}
	}
}

func addFailure(g *Graph, from, category, message string) {
	id := "failure:" + category
	g.AddNode(Node{ID: id, Type: NodeFailure, Label: category})
	g.AddEdge(Edge{From: from, To: id, Type: EdgeFailedWith, Attributes: map[string]interface{}{"message": message}})
}

// Categorize maps an assertion kind onto a failure category.
func Categorize(kind string) string {
	switch fault.Kind(kind) {
	case fault.KindLocatorTimeout:
		return "LocatorTimeout"
	case fault.KindReadinessTimeout:
		return "ReadinessTimeout"
	case fault.KindAccessibility:
		return "AccessibilityViolation"
	case fault.KindInfrastructure:
		return "Infrastructure"
	case fault.KindDeadline:
		return "ScenarioDeadline"
	case fault.KindStep:
		return "StepError"
	case fault.KindNone, fault.KindAssertion:
		return "Assertion"
	}
	switch kind {
	case "performance":
		return "PerformanceBudget"
	case "probe":
		return "RouteProbe"
	}
	return "Assertion"
}

func sameParent(a, b string) bool {
	return a[:strings.LastIndex(a, "/")] == b[:strings.LastIndex(b, "/")]
}

func phaseTrace(phases []results.Phase) string {
	parts := make([]string, len(phases))
	for i, phase := range phases {
		parts[i] = string(phase)
	}
	return strings.Join(parts, ">")
}
