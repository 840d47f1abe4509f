package astparser

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// extractGo walks a Go parse tree, grounded on the teacher's
// extractGoSymbols (ast_treesitter.go): the node-type switch and
// ChildByFieldName lookups are kept, reshaped to emit Symbol/Import
// instead of symbol_graph/dependency_link Mangle facts.
func extractGo(root *sitter.Node, content []byte) ([]Symbol, []Import, []Export) {
	var symbols []Symbol
	var imports []Import

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := nodeText(nameNode, content)
				symbols = append(symbols, Symbol{
					Name:      name,
					Kind:      SymbolFunction,
					Exported:  isExportedGoName(name),
					StartLine: line(n),
					EndLine:   endLine(n),
					Signature: goFuncSignature(n, content, "func "+name),
				})
			}

		case "method_declaration":
			nameNode := n.ChildByFieldName("name")
			receiverNode := n.ChildByFieldName("receiver")
			if nameNode != nil && receiverNode != nil {
				name := nodeText(nameNode, content)
				receiver := nodeText(receiverNode, content)
				symbols = append(symbols, Symbol{
					Name:      name,
					Kind:      SymbolMethod,
					Exported:  isExportedGoName(name),
					StartLine: line(n),
					EndLine:   endLine(n),
					Receiver:  receiver,
					Signature: goFuncSignature(n, content, "func "+receiver+" "+name),
				})
			}

		case "type_declaration":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				spec := n.NamedChild(i)
				if spec.Type() != "type_spec" {
					continue
				}
				nameNode := spec.ChildByFieldName("name")
				typeNode := spec.ChildByFieldName("type")
				if nameNode == nil {
					continue
				}
				name := nodeText(nameNode, content)
				kind := SymbolType
				if typeNode != nil {
					switch typeNode.Type() {
					case "struct_type":
						kind = SymbolStruct
					case "interface_type":
						kind = SymbolInterface
					}
				}
				symbols = append(symbols, Symbol{
					Name:      name,
					Kind:      kind,
					Exported:  isExportedGoName(name),
					StartLine: line(spec),
					EndLine:   endLine(spec),
					Signature: nodeText(spec, content),
				})
			}

		case "import_declaration":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				spec := n.NamedChild(i)
				if spec.Type() != "import_spec" {
					continue
				}
				if pathNode := spec.ChildByFieldName("path"); pathNode != nil {
					raw := nodeText(pathNode, content)
					imports = append(imports, Import{
						Source: trimQuotes(raw),
						Line:   line(spec),
					})
				}
			}

		case "var_declaration", "const_declaration":
			// Only package-level declarations: skip ones nested inside a
			// function body.
			if n.Parent() != nil && n.Parent().Type() != "source_file" {
				break
			}
			for i := 0; i < int(n.NamedChildCount()); i++ {
				spec := n.NamedChild(i)
				if spec.Type() != "var_spec" && spec.Type() != "const_spec" {
					continue
				}
				for j := 0; j < int(spec.NamedChildCount()); j++ {
					nameNode := spec.NamedChild(j)
					if nameNode.Type() != "identifier" {
						continue
					}
					name := nodeText(nameNode, content)
					symbols = append(symbols, Symbol{
						Name:      name,
						Kind:      SymbolVariable,
						Exported:  isExportedGoName(name),
						StartLine: line(spec),
						EndLine:   endLine(spec),
						Signature: nodeText(spec, content),
					})
				}
			}
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)

	var exports []Export
	for _, s := range symbols {
		if s.Exported {
			exports = append(exports, Export{Name: s.Name, Line: s.StartLine})
		}
	}
	return symbols, imports, exports
}

func goFuncSignature(n *sitter.Node, content []byte, prefix string) string {
	sig := prefix
	if params := n.ChildByFieldName("parameters"); params != nil {
		sig += nodeText(params, content)
	}
	if result := n.ChildByFieldName("result"); result != nil {
		sig += " " + nodeText(result, content)
	}
	return sig
}

// extractPython walks a Python parse tree, grounded on the teacher's
// extractPythonSymbols.
func extractPython(root *sitter.Node, content []byte) ([]Symbol, []Import, []Export) {
	var symbols []Symbol
	var imports []Import

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "class_definition":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := nodeText(nameNode, content)
				symbols = append(symbols, Symbol{
					Name:      name,
					Kind:      SymbolClass,
					Exported:  !isDunderOrPrivate(name),
					StartLine: line(n),
					EndLine:   endLine(n),
					Signature: "class " + name,
				})
			}
		case "function_definition":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := nodeText(nameNode, content)
				sig := "def " + name
				if params := n.ChildByFieldName("parameters"); params != nil {
					sig += nodeText(params, content)
				}
				symbols = append(symbols, Symbol{
					Name:      name,
					Kind:      SymbolFunction,
					Exported:  !isDunderOrPrivate(name),
					StartLine: line(n),
					EndLine:   endLine(n),
					Signature: sig,
				})
			}
		case "import_statement", "import_from_statement":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				if child.Type() == "dotted_name" {
					imports = append(imports, Import{Source: nodeText(child, content), Line: line(n)})
				}
			}

		case "assignment":
			// Only module-level assignments (parent is expression_statement
			// whose parent is the module root): skip ones nested inside a
			// function or class body.
			parent := n.Parent()
			if parent == nil || parent.Type() != "expression_statement" || parent.Parent() == nil || parent.Parent().Type() != "module" {
				break
			}
			nameNode := n.ChildByFieldName("left")
			if nameNode == nil || nameNode.Type() != "identifier" {
				break
			}
			name := nodeText(nameNode, content)
			symbols = append(symbols, Symbol{
				Name:      name,
				Kind:      SymbolVariable,
				Exported:  !isDunderOrPrivate(name),
				StartLine: line(n),
				EndLine:   endLine(n),
				Signature: nodeText(n, content),
			})
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)

	var exports []Export
	for _, s := range symbols {
		if s.Exported {
			exports = append(exports, Export{Name: s.Name, Line: s.StartLine})
		}
	}
	return symbols, imports, exports
}

func isDunderOrPrivate(name string) bool {
	return len(name) > 0 && name[0] == '_'
}

// extractJSOrTS walks a JavaScript or TypeScript parse tree. Both
// grammars share node-type names for the constructs this parser cares
// about, so one walker serves both languages, grounded on the teacher's
// extractJSSymbols/extractTSSymbols (which only diverged on
// interface_declaration, handled below).
func extractJSOrTS(root *sitter.Node, content []byte) ([]Symbol, []Import, []Export) {
	var symbols []Symbol
	var imports []Import

	hasExport := func(n *sitter.Node) bool {
		parent := n.Parent()
		return parent != nil && parent.Type() == "export_statement"
	}

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "class_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := nodeText(nameNode, content)
				symbols = append(symbols, Symbol{
					Name:      name,
					Kind:      SymbolClass,
					Exported:  hasExport(n),
					StartLine: line(n),
					EndLine:   endLine(n),
					Signature: "class " + name,
				})
			}
		case "function_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := nodeText(nameNode, content)
				sig := "function " + name
				if params := n.ChildByFieldName("parameters"); params != nil {
					sig += nodeText(params, content)
				}
				symbols = append(symbols, Symbol{
					Name:      name,
					Kind:      SymbolFunction,
					Exported:  hasExport(n),
					StartLine: line(n),
					EndLine:   endLine(n),
					Signature: sig,
				})
			}
		case "interface_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := nodeText(nameNode, content)
				symbols = append(symbols, Symbol{
					Name:      name,
					Kind:      SymbolInterface,
					Exported:  hasExport(n),
					StartLine: line(n),
					EndLine:   endLine(n),
					Signature: "interface " + name,
				})
			}
		case "lexical_declaration", "variable_declaration":
			// Only top-level declarations: skip ones nested inside a
			// function or class body.
			if n.Parent() != nil && n.Parent().Type() != "program" && n.Parent().Type() != "export_statement" {
				break
			}
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				if child.Type() != "variable_declarator" {
					continue
				}
				nameNode := child.ChildByFieldName("name")
				valueNode := child.ChildByFieldName("value")
				if nameNode == nil {
					continue
				}
				name := nodeText(nameNode, content)
				if valueNode != nil && (valueNode.Type() == "arrow_function" || valueNode.Type() == "function") {
					symbols = append(symbols, Symbol{
						Name:      name,
						Kind:      SymbolFunction,
						Exported:  hasExport(n),
						StartLine: line(n),
						EndLine:   endLine(n),
						Signature: "const " + name + " = ...",
					})
					continue
				}
				symbols = append(symbols, Symbol{
					Name:      name,
					Kind:      SymbolVariable,
					Exported:  hasExport(n),
					StartLine: line(n),
					EndLine:   endLine(n),
					Signature: nodeText(child, content),
				})
			}
		case "import_statement":
			if sourceNode := n.ChildByFieldName("source"); sourceNode != nil {
				imports = append(imports, Import{
					Source: trimQuotes(nodeText(sourceNode, content)),
					Line:   line(n),
				})
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)

	var exports []Export
	for _, s := range symbols {
		if s.Exported {
			exports = append(exports, Export{Name: s.Name, Line: s.StartLine})
		}
	}
	return symbols, imports, exports
}

func trimQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
