package ai

import (
	"fmt"
	"os"
	"strings"

	"raid-mail-agent/internal/conversation/domain"
)

// ClosingNote ends every farewell email
const ClosingNote = "This concludes our conversation with %s, the club agent. Feel free to reach out anytime."

const defaultPersona = `You are %[1]s, RAID's latest agent for the University of Melbourne's RAID (Responsive AI Development) club. Your task is to manage the email correspondence with a new member. Your primary goal is to start and keep up a conversation that builds rapport, leading to a personalized invitation to club events.

Persona and style: write in a friendly, smart-casual and conversational tone. Emails must be easy to read and invite a reply.

Initial email: welcome the new member warmly, introduce yourself as RAID's latest agent and ask about their interests and major. Do not give event details yet.

Later emails: once you understand their interests and major, talk about upcoming events in a way that feels tailored to them.

Constraints: do not ask for more information than their interests, major and motivation. Keep every email under 250 words. Write only the email body in markdown, with no subject line. Sign off as %[1]s.`

const extractionSystem = "You are a precise information extractor. Only extract what is explicitly stated. Never guess or add information. Return empty lists for missing data."

const extractionPrompt = `Analyze this conversation and extract ONLY information that is explicitly mentioned.

Conversation:
%s

Return a JSON object with these fields:
{
  "major": "their field of study (use 'Not mentioned' if not specified)",
  "motivation": "why they want to join (use 'Not mentioned' if not specified)",
  "desired_activities": ["list of activities they specifically mentioned interest in"]
}

Rules:
- Only extract information that is clearly stated in the conversation
- If something is not mentioned, use 'Not mentioned' or an empty list []
- Do NOT guess or infer information
- Return only the JSON object`

const extractionRetryPrompt = `Your previous answer could not be parsed as the requested JSON object (%v).

Previous answer:
%s

Reply again with ONLY a JSON object of the form {"major": "...", "motivation": "...", "desired_activities": ["..."]}. No prose, no code fences.`

// LoadSystemPrompt builds the persona prompt. promptFile replaces the built-in
// persona when set; every readable context file is appended as reference
// material.
func LoadSystemPrompt(agentName, promptFile string, contextFiles []string) (string, error) {
	prompt := fmt.Sprintf(defaultPersona, agentName)
	if promptFile != "" {
		data, err := os.ReadFile(promptFile)
		if err != nil {
			return "", fmt.Errorf("failed to read system prompt: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}

	var b strings.Builder
	b.WriteString(prompt)
	for _, path := range contextFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read context file %s: %w", path, err)
		}
		fmt.Fprintf(&b, "\n\n--- Content from %s ---\n%s", path, strings.TrimSpace(string(data)))
	}
	return b.String(), nil
}

// stageInstruction tells the model what this exchange of the thread is for
func stageInstruction(req *domain.DraftRequest, agentName string) string {
	who := req.Name
	if who == "" {
		who = req.Email
	}
	switch {
	case req.Final:
		return fmt.Sprintf("Write the final email to %s based on their last reply. End the conversation politely and encourage them to reach out anytime. Do not suggest events. The email MUST end with this exact note: '%s'", who, fmt.Sprintf(ClosingNote, agentName))
	case req.Exchange == 0:
		return fmt.Sprintf("Write the initial welcome email to %s, a new member. Greet them warmly, introduce yourself and ask about their interests and major.", who)
	case req.Exchange == 1:
		return fmt.Sprintf("%s has replied to the welcome email. Write a follow-up that acknowledges their reply and asks more about their background and interests.", who)
	case req.Exchange == 2:
		return fmt.Sprintf("%s has replied again. Write a more engaging follow-up that builds on the conversation so far. The goal is to get to know them better.", who)
	default:
		return fmt.Sprintf("%s replied again. Based on the interests they have shown, write a personalized reply that connects them with the club's vision and mission and finds out which kinds of events they would enjoy. Do not recommend specific events.", who)
	}
}

// formatConversation renders a thread as "Agent:" / "User:" turns
func formatConversation(history []*domain.Message) string {
	var b strings.Builder
	for i, m := range history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		role := "User"
		if m.Sender == domain.SenderAgent {
			role = "Agent"
		}
		fmt.Fprintf(&b, "%s: %s", role, strings.TrimSpace(m.Body))
	}
	return b.String()
}

func draftPrompt(req *domain.DraftRequest, agentName string) string {
	instruction := stageInstruction(req, agentName)
	if len(req.History) == 0 {
		return instruction
	}
	return fmt.Sprintf("Conversation so far:\n%s\n\n%s", formatConversation(req.History), instruction)
}
