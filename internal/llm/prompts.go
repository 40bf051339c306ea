package llm

import (
	"fmt"
	"strings"

	"github.com/Veraticus/kasa/internal/model"
)

const namesSystemPrompt = `You are an expert entity extraction system specialized in identifying Turkish human names in payment descriptions.
Your goal is to extract ALL full human names found in the text that are DIFFERENT from the 'Sender Name'.

Rules:
1. Input will be: "Description: [text] | Sender: [name]"
2. Extract full names (First + Last Name). Ignore single names unless context clearly implies a person.
3. Ignore company names, bank terms (KURS, ODEME, HESAP, YAPI, KREDI), and the Sender's name.
4. Output MUST be a strictly valid JSON list of strings. Example: ["Ali Yilmaz", "Ayse Demir"]
5. If no valid names are found, output empty list: []`

func namesUserPrompt(info, sender string) string {
	return fmt.Sprintf("Description: %s | Sender: %s", info, sender)
}

// intentSystemPrompt lists the actionable category labels the operator may
// name in a reply.
func intentSystemPrompt() string {
	var labels []string
	for _, c := range model.Categories {
		if c.Actionable() {
			labels = append(labels, c.Label())
		}
	}
	return fmt.Sprintf(`You are a data extraction assistant for a driving school.
Allowed Payment Categories: [%s].

Rules:
1. Extract the full name AND payment type from the message.
2. Map payment descriptions to the allowed categories ONLY.
3. Output strictly in JSON format:
   {"name": "Full Name or null", "payment_type": "CATEGORY or null"}
4. If the message is useless or contains no relevant info, output:
   {"no_information": "reason"}
5. Do not output markdown, code blocks, or explanation. Just raw JSON.`, strings.Join(labels, ", "))
}

func intentUserPrompt(message string) string {
	return "Analyze this message: " + message
}
