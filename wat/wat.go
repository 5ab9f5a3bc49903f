package wat

// Compile translates WebAssembly Text format source into a binary module.
func Compile(source string) ([]byte, error) {
	tokens, err := tokenize(source)
	if err != nil {
		return nil, err
	}
	node, err := parseSexpr(tokens)
	if err != nil {
		return nil, err
	}
	mod, err := buildModule(node)
	if err != nil {
		return nil, err
	}
	return mod.encode(), nil
}
