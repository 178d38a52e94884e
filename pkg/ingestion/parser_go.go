// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	"strings"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/kraklabs/repograph/pkg/store"
)

// extractGo walks a Go syntax tree and fills fp with definitions, imports,
// and name occurrences.
func (p *Parser) extractGo(root *sitter.Node, content []byte, fp *FileParse) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)

		switch child.Type() {
		case "function_declaration":
			p.goFunction(child, content, fp)
		case "method_declaration":
			p.goMethod(child, content, fp)
		case "type_declaration":
			p.goTypeDeclaration(child, content, fp)
		case "const_declaration":
			p.goValueDeclaration(child, content, fp, store.KindConstant)
		case "var_declaration":
			p.goValueDeclaration(child, content, fp, store.KindVariable)
		case "import_declaration":
			p.goImports(child, content, fp)
		}
	}

	collectGoOccurrences(root, content, fp)
}

func (p *Parser) goFunction(node *sitter.Node, content []byte, fp *FileParse) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, content)

	fp.Definitions = append(fp.Definitions, ParsedDefinition{
		Name:       name,
		Kind:       store.KindFunction,
		StartLine:  startLine(node),
		EndLine:    endLine(node),
		SourceCode: nodeText(node, content),
		Docstring:  precedingComment(node, content),
		IsExported: goExported(name),
	})
}

func (p *Parser) goMethod(node *sitter.Node, content []byte, fp *FileParse) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, content)

	fp.Definitions = append(fp.Definitions, ParsedDefinition{
		Name:       name,
		Kind:       store.KindMethod,
		StartLine:  startLine(node),
		EndLine:    endLine(node),
		SourceCode: nodeText(node, content),
		Docstring:  precedingComment(node, content),
		IsExported: goExported(name),
	})
}

// goTypeDeclaration emits one definition per type spec. Struct types map to
// the class kind, interfaces to interface, everything else to type_alias.
func (p *Parser) goTypeDeclaration(node *sitter.Node, content []byte, fp *FileParse) {
	doc := precedingComment(node, content)

	var specs []*sitter.Node
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "type_spec":
			specs = append(specs, child)
		case "type_spec_list":
			for j := 0; j < int(child.ChildCount()); j++ {
				if spec := child.Child(j); spec.Type() == "type_spec" {
					specs = append(specs, spec)
				}
			}
		}
	}

	grouped := len(specs) > 1
	for _, spec := range specs {
		nameNode := spec.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		name := nodeText(nameNode, content)

		kind := store.KindTypeAlias
		if typeNode := spec.ChildByFieldName("type"); typeNode != nil {
			switch typeNode.Type() {
			case "struct_type":
				kind = store.KindClass
			case "interface_type":
				kind = store.KindInterface
			}
		}

		docstring := doc
		if grouped {
			docstring = precedingComment(spec, content)
		}

		// Grouped specs share the declaration node; use the spec span so
		// each definition covers only its own type.
		span := spec
		if !grouped {
			span = node
		}

		fp.Definitions = append(fp.Definitions, ParsedDefinition{
			Name:       name,
			Kind:       kind,
			StartLine:  startLine(span),
			EndLine:    endLine(span),
			SourceCode: nodeText(span, content),
			Docstring:  docstring,
			IsExported: goExported(name),
		})
	}
}

// goValueDeclaration emits constant or variable definitions for top-level
// const and var blocks. The first identifier of each spec names the
// definition.
func (p *Parser) goValueDeclaration(node *sitter.Node, content []byte, fp *FileParse, kind string) {
	doc := precedingComment(node, content)

	for i := 0; i < int(node.ChildCount()); i++ {
		spec := node.Child(i)
		if t := spec.Type(); t != "const_spec" && t != "var_spec" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		name := nodeText(nameNode, content)

		fp.Definitions = append(fp.Definitions, ParsedDefinition{
			Name:       name,
			Kind:       kind,
			StartLine:  startLine(spec),
			EndLine:    endLine(spec),
			SourceCode: nodeText(spec, content),
			Docstring:  doc,
			IsExported: goExported(name),
		})
	}
}

func (p *Parser) goImports(node *sitter.Node, content []byte, fp *FileParse) {
	appendSpec := func(spec *sitter.Node) {
		pathNode := spec.ChildByFieldName("path")
		if pathNode == nil {
			return
		}
		importPath := strings.Trim(nodeText(pathNode, content), `"`)

		alias := ""
		if nameNode := spec.ChildByFieldName("name"); nameNode != nil {
			alias = nodeText(nameNode, content)
		}

		fp.Imports = append(fp.Imports, ParsedImport{
			Path:      importPath,
			Alias:     alias,
			StartLine: startLine(spec),
		})
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "import_spec":
			appendSpec(child)
		case "import_spec_list":
			for j := 0; j < int(child.ChildCount()); j++ {
				if spec := child.Child(j); spec.Type() == "import_spec" {
					appendSpec(spec)
				}
			}
		}
	}
}

// collectGoOccurrences records call-expression callees and type usages.
// Only names that match a known definition resolve later, so over-capture
// is harmless.
func collectGoOccurrences(node *sitter.Node, content []byte, fp *FileParse) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "call_expression":
		if fn := node.ChildByFieldName("function"); fn != nil {
			if name := goCalleeName(fn, content); name != "" {
				fp.Occurrences = append(fp.Occurrences, Occurrence{Name: name, Line: startLine(node)})
			}
		}
	case "type_identifier":
		fp.Occurrences = append(fp.Occurrences, Occurrence{Name: nodeText(node, content), Line: startLine(node)})
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		collectGoOccurrences(node.Child(i), content, fp)
	}
}

// goCalleeName extracts the called name from a call expression's function
// node. Selector calls yield the field name so obj.Method matches the
// Method definition.
func goCalleeName(node *sitter.Node, content []byte) string {
	switch node.Type() {
	case "identifier":
		return nodeText(node, content)
	case "selector_expression":
		if field := node.ChildByFieldName("field"); field != nil {
			return nodeText(field, content)
		}
	case "index_expression":
		if operand := node.ChildByFieldName("operand"); operand != nil {
			return goCalleeName(operand, content)
		}
	}
	return ""
}

// goExported reports whether a Go identifier is exported.
func goExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}
