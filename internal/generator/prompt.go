package generator

import "strings"

const systemPrompt = "You are a LinkedIn ghostwriter. Write a single post in plain text. " +
	"No hashtag walls, no emoji spam, no preamble like \"Here's your post\". " +
	"Short paragraphs, a strong first line, and a concrete takeaway."

// BuildPrompt assembles the system and user messages for one generation.
// Every context field is optional; blank fields are simply left out rather
// than sent as empty labels.
func BuildPrompt(gen Context) (system string, user string) {
	var b strings.Builder

	writeField := func(label, value string) {
		v := strings.TrimSpace(value)
		if v == "" {
			return
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\n")
	}

	writeField("Brand", gen.BrandName)
	writeField("Voice", gen.Voice)
	writeField("Target audience", gen.Audience)
	writeField("Goals", gen.Goals)
	writeField("Content pillar", gen.PillarTitle)
	writeField("Pillar description", gen.PillarDescription)
	writeField("Template structure", gen.TemplateStructure)
	writeField("Template instructions", gen.TemplatePrompt)
	writeField("Call to action", gen.TemplateCallToAction)
	writeField("Idea hook", gen.IdeaHook)
	writeField("Idea angle", gen.IdeaAngle)

	if b.Len() == 0 {
		b.WriteString("Write a thoughtful LinkedIn post for a professional audience.\n")
	} else {
		b.WriteString("\nWrite the LinkedIn post now.\n")
	}
	return systemPrompt, b.String()
}
