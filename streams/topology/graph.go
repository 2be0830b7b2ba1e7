package topology

import (
	"fmt"
	"github.com/awalterschulze/gographviz"
	"github.com/gmbyapa/kfactory/pkg/errors"
)

const graphRoot = `root`

type graphViz struct {
	topology *Topology
	graph    *gographviz.Graph
}

func newGraphViz(topology *Topology) *graphViz {
	g := gographviz.NewGraph()
	// attribute errors only happen for invalid graph names
	_ = g.SetName(graphRoot)
	_ = g.SetDir(true)
	_ = g.AddAttr(graphRoot, `splines`, `true`)
	_ = g.AddAttr(graphRoot, `rankdir`, `LR`)

	return &graphViz{
		topology: topology,
		graph:    g,
	}
}

func (g *graphViz) Visualize() (string, error) {
	for _, source := range g.topology.sources {
		if err := g.addTopic(source.topic, `darkseagreen1`); err != nil {
			return ``, err
		}

		if err := g.graph.AddNode(graphRoot, g.nodeId(source.name), g.attributes(KindSource, source.name)); err != nil {
			return ``, err
		}

		if err := g.graph.AddEdge(g.topicId(source.topic), g.nodeId(source.name), true, nil); err != nil {
			return ``, err
		}
	}

	for _, p := range g.topology.processors {
		if err := g.graph.AddNode(graphRoot, g.nodeId(p.name), g.attributes(KindProcessor, p.name)); err != nil {
			return ``, err
		}
	}

	for _, sink := range g.topology.sinks {
		if err := g.graph.AddNode(graphRoot, g.nodeId(sink.name), g.attributes(KindSink, sink.name)); err != nil {
			return ``, err
		}

		if err := g.addTopic(sink.topic, `lightgoldenrod1`); err != nil {
			return ``, err
		}

		if err := g.graph.AddEdge(g.nodeId(sink.name), g.topicId(sink.topic), true, nil); err != nil {
			return ``, err
		}
	}

	edges := func(node string, parents []string) error {
		for _, parent := range parents {
			if !g.graph.IsNode(g.nodeId(parent)) {
				return errors.Errorf("invalid parent [%s] of [%s]\n%s", parent, node, g.graph.String())
			}
			if err := g.graph.AddEdge(g.nodeId(parent), g.nodeId(node), true, nil); err != nil {
				return err
			}
		}
		return nil
	}

	for _, p := range g.topology.processors {
		if err := edges(p.name, p.parents); err != nil {
			return ``, err
		}
	}

	for _, sink := range g.topology.sinks {
		if err := edges(sink.name, sink.parents); err != nil {
			return ``, err
		}
	}

	for _, str := range g.topology.stores {
		strId := fmt.Sprintf(`"store_%s"`, str.name)
		if err := g.graph.AddNode(graphRoot, strId, map[string]string{
			`label`:    fmt.Sprintf(`"%s"`, str.name),
			`shape`:    `cylinder`,
			`fontsize`: `10`,
		}); err != nil {
			return ``, err
		}

		for _, p := range str.processors {
			if err := g.graph.AddEdge(g.nodeId(p), strId, true, map[string]string{
				`style`: `dashed`,
				`dir`:   `none`,
			}); err != nil {
				return ``, err
			}
		}
	}

	graph, err := g.graph.WriteAst()
	if err != nil {
		return ``, errors.Wrap(err, `graph failed`)
	}

	return graph.String(), nil
}

func (g *graphViz) addTopic(topic, color string) error {
	if g.graph.IsNode(g.topicId(topic)) {
		return nil
	}

	return g.graph.AddNode(graphRoot, g.topicId(topic), map[string]string{
		`label`:     fmt.Sprintf(`"%s"`, topic),
		`fillcolor`: color,
		`shape`:     `box`,
		`style`:     `"rounded,filled"`,
		`fontsize`:  `11`,
	})
}

func (g *graphViz) topicId(topic string) string {
	return fmt.Sprintf(`"topic_%s"`, topic)
}

func (g *graphViz) nodeId(name string) string {
	return fmt.Sprintf(`"node_%s"`, name)
}

func (g *graphViz) attributes(kind NodeKind, name string) map[string]string {
	attrs := map[string]string{
		`fontsize`: `10`,
		`style`:    `filled`,
	}

	switch kind {
	case KindSource:
		attrs[`label`] = fmt.Sprintf(`"%s\nSource"`, name)
		attrs[`fillcolor`] = `deepskyblue1`
	case KindSink:
		attrs[`label`] = fmt.Sprintf(`"%s\nTo"`, name)
		attrs[`fillcolor`] = `deepskyblue1`
	default:
		attrs[`label`] = fmt.Sprintf(`"%s"`, name)
		attrs[`fillcolor`] = `slateblue4`
		attrs[`fontcolor`] = `grey100`
	}

	return attrs
}
