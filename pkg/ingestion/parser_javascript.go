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

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/kraklabs/repograph/pkg/store"
)

// jsExportInfo carries export context down the walk.
type jsExportInfo struct {
	exported      bool
	defaultExport bool
	// span is the export statement node when present, so the emitted
	// definition covers the export keyword too.
	span *sitter.Node
}

// extractJS walks a JavaScript or TypeScript syntax tree and fills fp.
// The TypeScript grammar also parses TSX, so both .ts and .tsx land here.
func (p *Parser) extractJS(root *sitter.Node, content []byte, fp *FileParse, typescript bool) {
	for i := 0; i < int(root.ChildCount()); i++ {
		p.jsTopLevel(root.Child(i), content, fp, typescript, jsExportInfo{})
	}
	collectJSOccurrences(root, content, fp)
}

func (p *Parser) jsTopLevel(node *sitter.Node, content []byte, fp *FileParse, typescript bool, export jsExportInfo) {
	switch node.Type() {
	case "export_statement":
		info := jsExportInfo{exported: true, span: node}
		for i := 0; i < int(node.ChildCount()); i++ {
			if node.Child(i).Type() == "default" {
				info.defaultExport = true
				break
			}
		}
		if decl := node.ChildByFieldName("declaration"); decl != nil {
			p.jsTopLevel(decl, content, fp, typescript, info)
		} else if value := node.ChildByFieldName("value"); value != nil {
			// export default <expression>
			p.jsDefaultExpression(node, value, content, fp)
		}

	case "function_declaration", "generator_function_declaration":
		p.jsNamedSpan(node, node.ChildByFieldName("name"), store.KindFunction, content, fp, export)

	case "class_declaration":
		p.jsClass(node, content, fp, export)

	case "lexical_declaration", "variable_declaration":
		p.jsVariableDeclaration(node, content, fp, export)

	case "interface_declaration":
		if typescript {
			p.jsNamedSpan(node, node.ChildByFieldName("name"), store.KindInterface, content, fp, export)
		}

	case "type_alias_declaration":
		if typescript {
			p.jsNamedSpan(node, node.ChildByFieldName("name"), store.KindTypeAlias, content, fp, export)
		}

	case "enum_declaration":
		if typescript {
			p.jsNamedSpan(node, node.ChildByFieldName("name"), store.KindEnum, content, fp, export)
		}

	case "import_statement":
		if source := node.ChildByFieldName("source"); source != nil {
			fp.Imports = append(fp.Imports, ParsedImport{
				Path:      strings.Trim(nodeText(source, content), `"'`),
				StartLine: startLine(node),
			})
		}

	case "expression_statement", "ambient_declaration":
		// module.exports and declare blocks contribute nothing here.
	}
}

// jsNamedSpan emits one definition for a named declaration node.
func (p *Parser) jsNamedSpan(node, nameNode *sitter.Node, kind string, content []byte, fp *FileParse, export jsExportInfo) {
	if nameNode == nil {
		return
	}

	span := node
	if export.span != nil {
		span = export.span
	}

	fp.Definitions = append(fp.Definitions, ParsedDefinition{
		Name:            nodeText(nameNode, content),
		Kind:            kind,
		StartLine:       startLine(span),
		EndLine:         endLine(span),
		SourceCode:      nodeText(span, content),
		Docstring:       precedingComment(span, content),
		IsExported:      export.exported,
		IsDefaultExport: export.defaultExport,
	})
}

func (p *Parser) jsClass(node *sitter.Node, content []byte, fp *FileParse, export jsExportInfo) {
	p.jsNamedSpan(node, node.ChildByFieldName("name"), store.KindClass, content, fp, export)

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		if member.Type() != "method_definition" {
			continue
		}
		nameNode := member.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		fp.Definitions = append(fp.Definitions, ParsedDefinition{
			Name:       nodeText(nameNode, content),
			Kind:       store.KindMethod,
			StartLine:  startLine(member),
			EndLine:    endLine(member),
			SourceCode: nodeText(member, content),
			Docstring:  precedingComment(member, content),
			IsExported: export.exported,
		})
	}
}

// jsVariableDeclaration emits definitions for const/let/var declarators.
// A declarator whose value is a function becomes a function definition;
// otherwise const maps to constant and let/var to variable.
func (p *Parser) jsVariableDeclaration(node *sitter.Node, content []byte, fp *FileParse, export jsExportInfo) {
	isConst := false
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.Child(i).Type() == "const" {
			isConst = true
			break
		}
	}

	span := node
	if export.span != nil {
		span = export.span
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		decl := node.NamedChild(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		if nameNode == nil || nameNode.Type() != "identifier" {
			continue
		}

		kind := store.KindVariable
		if isConst {
			kind = store.KindConstant
		}
		if value := decl.ChildByFieldName("value"); value != nil {
			switch value.Type() {
			case "arrow_function", "function_expression", "function", "generator_function":
				kind = store.KindFunction
			}
		}

		fp.Definitions = append(fp.Definitions, ParsedDefinition{
			Name:            nodeText(nameNode, content),
			Kind:            kind,
			StartLine:       startLine(span),
			EndLine:         endLine(span),
			SourceCode:      nodeText(span, content),
			Docstring:       precedingComment(span, content),
			IsExported:      export.exported,
			IsDefaultExport: export.defaultExport,
		})
	}
}

// jsDefaultExpression handles `export default <expr>` where the expression
// is anonymous. Named function or class expressions keep their name.
func (p *Parser) jsDefaultExpression(span, value *sitter.Node, content []byte, fp *FileParse) {
	name := "anonymous"
	kind := store.KindVariable

	switch value.Type() {
	case "arrow_function", "function_expression", "function", "generator_function":
		kind = store.KindFunction
		if n := value.ChildByFieldName("name"); n != nil {
			name = nodeText(n, content)
		}
	case "class":
		kind = store.KindClass
		if n := value.ChildByFieldName("name"); n != nil {
			name = nodeText(n, content)
		}
	case "identifier":
		name = nodeText(value, content)
	}

	fp.Definitions = append(fp.Definitions, ParsedDefinition{
		Name:            name,
		Kind:            kind,
		StartLine:       startLine(span),
		EndLine:         endLine(span),
		SourceCode:      nodeText(span, content),
		Docstring:       precedingComment(span, content),
		IsExported:      true,
		IsDefaultExport: true,
	})
}

func collectJSOccurrences(node *sitter.Node, content []byte, fp *FileParse) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "call_expression":
		if fn := node.ChildByFieldName("function"); fn != nil {
			if name := jsCalleeName(fn, content); name != "" {
				fp.Occurrences = append(fp.Occurrences, Occurrence{Name: name, Line: startLine(node)})
			}
		}
	case "new_expression":
		if ctor := node.ChildByFieldName("constructor"); ctor != nil {
			if name := jsCalleeName(ctor, content); name != "" {
				fp.Occurrences = append(fp.Occurrences, Occurrence{Name: name, Line: startLine(node)})
			}
		}
	case "type_identifier":
		fp.Occurrences = append(fp.Occurrences, Occurrence{Name: nodeText(node, content), Line: startLine(node)})
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		collectJSOccurrences(node.Child(i), content, fp)
	}
}

// jsCalleeName extracts the called name. Member calls resolve to the
// property so obj.method() matches the method definition.
func jsCalleeName(node *sitter.Node, content []byte) string {
	switch node.Type() {
	case "identifier":
		return nodeText(node, content)
	case "member_expression":
		if prop := node.ChildByFieldName("property"); prop != nil {
			return nodeText(prop, content)
		}
	}
	return ""
}
