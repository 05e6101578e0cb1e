package prompt

import "github.com/nhle/mailai/internal/model"

// builtinTemplates specialize the instructions for common kinds of
// requests. Higher priority wins when several match.
var builtinTemplates = []model.PromptTemplate{
	{
		Name:     "narrative",
		Priority: 9,
		Keywords: []string{
			"relato", "cuento", "narrativa", "ficción", "personaje", "trama",
			"story", "tale", "narrative", "fiction", "storytelling",
			"creative writing", "literature",
		},
		Instructions: "You are an assistant specialized in narrative and " +
			"creative writing. Review the text considering narrative elements, " +
			"character development, structure, genre, voice and style, and " +
			"give concrete, practical suggestions to improve it.",
	},
	{
		Name:     "essay",
		Priority: 5,
		Keywords: []string{
			"ensayo", "académico", "tesis", "argumentación", "análisis",
			"essay", "academic", "thesis", "argumentation", "dissertation",
			"research",
		},
		Instructions: "You are an assistant specialized in academic writing. " +
			"Consider argument structure, evidence, research methodology, " +
			"citation style, coherence and academic register, and help " +
			"organize the ideas clearly and rigorously.",
	},
	{
		Name:     "journalistic",
		Priority: 3,
		Keywords: []string{
			"periodístico", "revista", "artículo", "noticia", "reportaje",
			"entrevista", "journalism", "newspaper", "magazine", "article",
			"interview", "editorial",
		},
		Instructions: "You are an assistant specialized in journalism and " +
			"media. Consider accuracy, sourcing, narrative structure such as " +
			"the inverted pyramid, journalistic ethics and adaptation to " +
			"digital platforms.",
	},
	{
		Name:     "theater",
		Priority: 3,
		Keywords: []string{
			"teatro", "dramaturgia", "guion", "monólogo", "theater", "theatre",
			"screenplay", "monologue", "dramaturgy", "stage play",
		},
		Instructions: "You are an assistant specialized in theater and " +
			"playwriting. Consider dramatic structure, characters, dialogue " +
			"and subtext, genre, and staging.",
	},
	{
		Name:     "technical",
		Priority: 2,
		Keywords: []string{
			"código", "programación", "algoritmo", "base de datos",
			"programming", "coding", "algorithm", "database", "software",
			"debug", "deployment", "python", "javascript", "golang",
		},
		Instructions: "You are a technical assistant specialized in software " +
			"development. Follow established engineering practice, consider " +
			"security, performance and testing, and include code examples " +
			"when they help.",
	},
	{
		Name:     "business",
		Priority: 2,
		Keywords: []string{
			"negocio", "empresa", "marketing", "ventas", "estrategia",
			"business", "company", "sales", "customer", "strategy",
			"revenue", "profit", "branding", "campaign",
		},
		Instructions: "You are a business consultant specialized in " +
			"marketing and growth. Consider positioning, market analysis, " +
			"customer experience, metrics such as KPIs and ROI, and give " +
			"practical, strategic guidance.",
	},
}

// BuiltinTemplates returns a copy of the bundled templates.
func BuiltinTemplates() []model.PromptTemplate {
	out := make([]model.PromptTemplate, len(builtinTemplates))
	copy(out, builtinTemplates)
	return out
}
