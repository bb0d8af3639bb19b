// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package metaapi

import (
	"github.com/trac-platform/trac/internal/dal"
)

var nodeKindNames = map[dal.SearchNodeKind]string{
	dal.NodeLeaf: "LEAF",
	dal.NodeAnd:  "AND",
	dal.NodeOr:   "OR",
	dal.NodeNot:  "NOT",
}

var nodeKindValues = map[string]dal.SearchNodeKind{
	"LEAF": dal.NodeLeaf,
	"AND":  dal.NodeAnd,
	"OR":   dal.NodeOr,
	"NOT":  dal.NodeNot,
}

var searchOpNames = map[dal.SearchOp]string{
	dal.OpEQ:     "EQ",
	dal.OpNE:     "NE",
	dal.OpLT:     "LT",
	dal.OpLE:     "LE",
	dal.OpGT:     "GT",
	dal.OpGE:     "GE",
	dal.OpIN:     "IN",
	dal.OpEXISTS: "EXISTS",
}

var searchOpValues = map[string]dal.SearchOp{
	"EQ":     dal.OpEQ,
	"NE":     dal.OpNE,
	"LT":     dal.OpLT,
	"LE":     dal.OpLE,
	"GT":     dal.OpGT,
	"GE":     dal.OpGE,
	"IN":     dal.OpIN,
	"EXISTS": dal.OpEXISTS,
}

func nodeToWire(n dal.SearchNode) SearchNodeJSON {
	out := SearchNodeJSON{Kind: nodeKindNames[n.Kind]}
	if n.Kind == dal.NodeLeaf {
		out.AttrName = n.Term.AttrName
		out.AttrType = n.Term.AttrType
		out.Op = searchOpNames[n.Term.Op]
		out.Values = n.Term.Values
		return out
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, nodeToWire(c))
	}
	return out
}

func nodeFromWire(w SearchNodeJSON) dal.SearchNode {
	kind := nodeKindValues[w.Kind]
	if kind == dal.NodeLeaf {
		return dal.Leaf(dal.SearchTerm{
			AttrName: w.AttrName,
			AttrType: w.AttrType,
			Op:       searchOpValues[w.Op],
			Values:   w.Values,
		})
	}
	children := make([]dal.SearchNode, 0, len(w.Children))
	for _, c := range w.Children {
		children = append(children, nodeFromWire(c))
	}
	return dal.SearchNode{Kind: kind, Children: children}
}

func searchParamsFromWire(w SearchParamsJSON) dal.SearchParams {
	return dal.SearchParams{
		ObjectType:    w.ObjectType,
		Query:         nodeFromWire(w.Query),
		PriorVersions: w.PriorVersions,
		PriorTags:     w.PriorTags,
	}
}

func dalBatchFromWire(req *WriteBatchRequest) dal.Batch {
	return dal.Batch{
		PreallocateIds:      req.PreallocateIds,
		PreallocatedObjects: req.PreallocatedObjects,
		NewObjects:          req.NewObjects,
		NewVersions:         req.NewVersions,
		NewTags:             req.NewTags,
	}
}

func tenantsToWire(in []dal.TenantInfo) []TenantInfoJSON {
	out := make([]TenantInfoJSON, len(in))
	for i, t := range in {
		out[i] = TenantInfoJSON{Code: t.Code, Description: t.Description}
	}
	return out
}
