package tree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWalkVisitsChildrenInOrder(t *testing.T) {
	lhs := &Ident{Name: "x"}
	rhs := &Literal{Value: 1}
	assign := &Assign{Lhs: lhs, Rhs: rhs}
	body := &Begin{Stmts: []Node{assign}}

	var visited []Kind
	Walk(body, func(n Node) bool {
		visited = append(visited, n.Kind())
		return true
	}, nil)

	require.Equal(t, []Kind{KindBegin, KindAssign, KindIdent, KindLiteral}, visited)
}

func TestWalkCanSkipSubtree(t *testing.T) {
	inner := &Ident{Name: "skip-me"}
	outer := &Begin{Stmts: []Node{&Send{Fun: "noop", Block: &BlockArg{Body: inner}}}}

	var visited []Kind
	Walk(outer, func(n Node) bool {
		visited = append(visited, n.Kind())
		return n.Kind() != KindSend
	}, nil)

	require.Equal(t, []Kind{KindBegin, KindSend}, visited)
}

func TestRescueChildrenIncludeClauses(t *testing.T) {
	excClass := &ConstantLit{Name: "StandardError"}
	clauseBody := &Literal{Value: "handled"}
	r := &Rescue{
		Body: &Literal{Value: "risky"},
		Clauses: []RescueClause{
			{Classes: []Node{excClass}, VarName: "e", Body: clauseBody},
		},
	}
	children := r.Children()
	require.Contains(t, children, Node(excClass))
	require.Contains(t, children, Node(clauseBody))
}
