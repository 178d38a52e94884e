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

// extractPython walks a Python syntax tree and fills fp with definitions,
// imports, and name occurrences.
//
// Functions inside a class body become methods. Module-level assignments
// become variables, or constants when the name is SCREAMING_CASE.
func (p *Parser) extractPython(root *sitter.Node, content []byte, fp *FileParse) {
	p.walkPython(root, content, fp, false)
	collectPythonOccurrences(root, content, fp)
}

func (p *Parser) walkPython(node *sitter.Node, content []byte, fp *FileParse, inClass bool) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)

		switch child.Type() {
		case "function_definition":
			p.pythonFunction(child, child, content, fp, inClass)
		case "class_definition":
			p.pythonClass(child, child, content, fp)
		case "decorated_definition":
			// The decorators belong to the definition's span.
			if def := child.ChildByFieldName("definition"); def != nil {
				switch def.Type() {
				case "function_definition":
					p.pythonFunction(child, def, content, fp, inClass)
				case "class_definition":
					p.pythonClass(child, def, content, fp)
				}
			}
		case "expression_statement":
			if !inClass {
				p.pythonAssignment(child, content, fp)
			}
		case "import_statement", "import_from_statement":
			p.pythonImport(child, content, fp)
		}
	}
}

// pythonFunction emits a function or method definition. span covers the
// decorated form when decorators are present; def is the bare definition.
func (p *Parser) pythonFunction(span, def *sitter.Node, content []byte, fp *FileParse, inClass bool) {
	nameNode := def.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, content)

	kind := store.KindFunction
	if inClass {
		kind = store.KindMethod
	}

	fp.Definitions = append(fp.Definitions, ParsedDefinition{
		Name:       name,
		Kind:       kind,
		StartLine:  startLine(span),
		EndLine:    endLine(span),
		SourceCode: nodeText(span, content),
		Docstring:  pythonDocstring(def, content),
		IsExported: pythonExported(name),
	})
}

func (p *Parser) pythonClass(span, def *sitter.Node, content []byte, fp *FileParse) {
	nameNode := def.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, content)

	fp.Definitions = append(fp.Definitions, ParsedDefinition{
		Name:       name,
		Kind:       store.KindClass,
		StartLine:  startLine(span),
		EndLine:    endLine(span),
		SourceCode: nodeText(span, content),
		Docstring:  pythonDocstring(def, content),
		IsExported: pythonExported(name),
	})

	// Methods live inside the class body.
	if body := def.ChildByFieldName("body"); body != nil {
		p.walkPython(body, content, fp, true)
	}
}

// pythonAssignment emits a variable or constant for a simple module-level
// assignment. Tuple unpacking and attribute targets are skipped.
func (p *Parser) pythonAssignment(stmt *sitter.Node, content []byte, fp *FileParse) {
	if stmt.NamedChildCount() == 0 {
		return
	}
	assign := stmt.NamedChild(0)
	if assign.Type() != "assignment" {
		return
	}
	left := assign.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return
	}
	name := nodeText(left, content)

	kind := store.KindVariable
	if isScreamingCase(name) {
		kind = store.KindConstant
	}

	fp.Definitions = append(fp.Definitions, ParsedDefinition{
		Name:       name,
		Kind:       kind,
		StartLine:  startLine(stmt),
		EndLine:    endLine(stmt),
		SourceCode: nodeText(stmt, content),
		IsExported: pythonExported(name),
	})
}

func (p *Parser) pythonImport(node *sitter.Node, content []byte, fp *FileParse) {
	line := startLine(node)

	if node.Type() == "import_from_statement" {
		if module := node.ChildByFieldName("module_name"); module != nil {
			fp.Imports = append(fp.Imports, ParsedImport{
				Path:      nodeText(module, content),
				StartLine: line,
			})
		}
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			fp.Imports = append(fp.Imports, ParsedImport{
				Path:      nodeText(child, content),
				StartLine: line,
			})
		case "aliased_import":
			imp := ParsedImport{StartLine: line}
			if name := child.ChildByFieldName("name"); name != nil {
				imp.Path = nodeText(name, content)
			}
			if alias := child.ChildByFieldName("alias"); alias != nil {
				imp.Alias = nodeText(alias, content)
			}
			if imp.Path != "" {
				fp.Imports = append(fp.Imports, imp)
			}
		}
	}
}

// pythonDocstring returns the leading string literal of a definition body.
func pythonDocstring(def *sitter.Node, content []byte) string {
	body := def.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	expr := first.NamedChild(0)
	if expr.Type() != "string" {
		return ""
	}
	return strings.Trim(nodeText(expr, content), `"'`)
}

func collectPythonOccurrences(node *sitter.Node, content []byte, fp *FileParse) {
	if node == nil {
		return
	}

	if node.Type() == "call" {
		if fn := node.ChildByFieldName("function"); fn != nil {
			if name := pythonCalleeName(fn, content); name != "" {
				fp.Occurrences = append(fp.Occurrences, Occurrence{Name: name, Line: startLine(node)})
			}
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		collectPythonOccurrences(node.Child(i), content, fp)
	}
}

// pythonCalleeName extracts the called name. Attribute calls resolve to
// the final attribute so obj.method() matches the method definition.
func pythonCalleeName(node *sitter.Node, content []byte) string {
	switch node.Type() {
	case "identifier":
		return nodeText(node, content)
	case "attribute":
		if attr := node.ChildByFieldName("attribute"); attr != nil {
			return nodeText(attr, content)
		}
	}
	return ""
}

// pythonExported mirrors the underscore-prefix convention.
func pythonExported(name string) bool {
	return !strings.HasPrefix(name, "_")
}

// isScreamingCase reports whether a name looks like a module constant.
func isScreamingCase(name string) bool {
	hasLetter := false
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			hasLetter = true
		case r >= 'a' && r <= 'z':
			return false
		case r == '_' || (r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return hasLetter
}
