package lsp

// Custom protocol spoken with the cargo-appraiser VS Code extension.
const (
	MethodDecorationReplaceAll = "textDocument/decoration/replaceAll"
	MethodDecorationReset      = "textDocument/decoration/reset"
	MethodReadFile             = "textDocument/readFile"
)

// DecorationKind mirrors the dependency status names the extension maps to
// colors.
type DecorationKind string

const (
	DecorationNotParsed          DecorationKind = "notParsed"
	DecorationWaiting            DecorationKind = "waiting"
	DecorationLatest             DecorationKind = "latest"
	DecorationLocal              DecorationKind = "local"
	DecorationNotInstalled       DecorationKind = "notInstalled"
	DecorationMixedUpgradeable   DecorationKind = "mixedUpgradeable"
	DecorationCompatibleLatest   DecorationKind = "compatibleLatest"
	DecorationNonCompatibleLatest DecorationKind = "nonCompatibleLatest"
	DecorationYanked             DecorationKind = "yanked"
	DecorationGit                DecorationKind = "git"
)

type Decoration struct {
	ID    string         `json:"id"`
	Text  string         `json:"text"`
	Kind  DecorationKind `json:"kind"`
	Range Range          `json:"range"`
}

type ReplaceAllDecorationsParams struct {
	URI         DocumentURI  `json:"uri"`
	Decorations []Decoration `json:"decorations"`
}

type ResetDecorationsParams struct {
	URI DocumentURI `json:"uri"`
}

type ReadFileParams struct {
	URI DocumentURI `json:"uri"`
}

type ReadFileResponse struct {
	Content string `json:"content"`
}
