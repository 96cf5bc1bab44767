package retrieve

// Module identifies a writing module. Each module owns a knowledge base and
// an intent hint that biases query embeddings toward its domain.
type Module string

// Known writing modules.
const (
	ModuleLinkedIn Module = "linkedin"
	ModuleBlog     Module = "blog"
	ModuleEmail    Module = "email"
	ModuleTwitter  Module = "twitter"
	ModuleGeneral  Module = "general"
)

// moduleHints maps each known module to the intent hint appended during
// query expansion. Unknown modules resolve to no hint (fail closed) rather
// than silently matching nothing.
var moduleHints = map[Module]string{
	ModuleLinkedIn: "LinkedIn post writing professional B2B content",
	ModuleBlog:     "long-form blog article writing storytelling structure",
	ModuleEmail:    "business email writing outreach follow-up etiquette",
	ModuleTwitter:  "short-form social post writing concise hooks",
	ModuleGeneral:  "general purpose writing assistance",
}

// toneHint is the generic tone suffix added to every expanded query.
const toneHint = "clear engaging well-structured writing"

// IntentHint returns the intent hint for a module, or "" for unknown modules.
func IntentHint(m Module) string {
	return moduleHints[m]
}

// expandQuery biases the query embedding toward the module's domain by
// appending the module intent hint and generic tone words. The original
// query is always the prefix so its terms dominate the embedding.
func expandQuery(query string, m Module) string {
	hint := IntentHint(m)
	if hint == "" {
		return query + " " + toneHint
	}
	return query + " " + hint + " " + toneHint
}
