package scheduler

import (
	"encoding/xml"
	"io"
	"os"
	"sort"
	"strconv"
)

// GraphML export for inspection of the compiled dependency graph.

type graphmlDoc struct {
	XMLName xml.Name     `xml:"graphml"`
	XMLNS   string       `xml:"xmlns,attr"`
	Keys    []graphmlKey `xml:"key"`
	Graph   graphmlGraph `xml:"graph"`
}

type graphmlKey struct {
	ID   string `xml:"id,attr"`
	For  string `xml:"for,attr"`
	Name string `xml:"attr.name,attr"`
	Type string `xml:"attr.type,attr"`
}

type graphmlGraph struct {
	ID          string        `xml:"id,attr"`
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphmlNode `xml:"node"`
	Edges       []graphmlEdge `xml:"edge"`
}

type graphmlNode struct {
	ID   string      `xml:"id,attr"`
	Data graphmlData `xml:"data"`
}

type graphmlData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

type graphmlEdge struct {
	Source string `xml:"source,attr"`
	Target string `xml:"target,attr"`
}

// SaveGraphML writes the current graph, nodes labelled with task names.
func (s *Scheduler) SaveGraphML(w io.Writer) error {
	doc := graphmlDoc{
		XMLNS: "http://graphml.graphdrawing.org/xmlns",
		Keys: []graphmlKey{
			{ID: "label", For: "node", Name: "label", Type: "string"},
		},
		Graph: graphmlGraph{ID: "tasks", EdgeDefault: "directed"},
	}

	ids := make([]TaskID, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		doc.Graph.Nodes = append(doc.Graph.Nodes, graphmlNode{
			ID:   nodeName(id),
			Data: graphmlData{Key: "label", Value: s.tasks[id].name},
		})
	}

	edges := s.g.Edges()
	for edges.Next() {
		e := edges.Edge()
		doc.Graph.Edges = append(doc.Graph.Edges, graphmlEdge{
			Source: nodeName(TaskID(e.From().ID())),
			Target: nodeName(TaskID(e.To().ID())),
		})
	}
	sort.Slice(doc.Graph.Edges, func(i, j int) bool {
		a, b := doc.Graph.Edges[i], doc.Graph.Edges[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Target < b.Target
	})

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	return enc.Encode(doc)
}

// SaveGraphMLFile is the path convenience wrapper.
func (s *Scheduler) SaveGraphMLFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.SaveGraphML(f)
}

func nodeName(id TaskID) string {
	return "n" + strconv.FormatInt(int64(id), 10)
}
