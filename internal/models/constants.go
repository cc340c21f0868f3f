package models

const (
	DefaultChunkSize      = 1200
	DefaultChunkOverlap   = 50
	DefaultTopK           = 10
	DefaultCollectionName = "legal_docs"

	ContextSeparator = "\n\n"
	UnknownAnswer    = "Je ne sais pas"

	// PDFOnlyMessage is returned to uploaders of anything but a PDF.
	PDFOnlyMessage = "Seuls les fichiers PDF sont acceptés."

	// chunk metadata keys in the vector store
	MetaSource = "source"
	MetaPage   = "page"
	MetaIndex  = "index"
)

// DefaultSeparators are tried in order, coarsest first.
var DefaultSeparators = []string{"\n\n", "\n", ".", " ", ""}

var (
	AnswerPromptTemplate = `
Tu es un assistant utile qui réponds en français de manière claire et concise.
Réponds uniquement en utilisant le contexte fourni.
Si tu ne sais pas, dis "{{.unknown}}".

contexte : {{.context}}

question : {{.question}}

answer :
`
)
