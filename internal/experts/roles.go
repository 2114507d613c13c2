// Package experts runs a story past a fixed panel of reviewer roles before it
// is rewritten as a script. Each role is one completion call; a failing role
// is recorded and the panel carries on.
package experts

// DefaultAgeGroup is the audience used when a request names none.
const DefaultAgeGroup = "8-12"

// Role is one reviewer on the analysis panel.
type Role struct {
	ID     string
	Name   string
	Prompt string
}

var roles = []Role{
	{
		ID:   "subject_researcher",
		Name: "Subject Researcher",
		Prompt: `Analyze the text and identify:
1. Key themes and concepts
2. Challenging vocabulary
3. Complex ideas that need simplification
4. Cultural or historical references that might need explanation
Provide a structured analysis with specific recommendations for simplification.`,
	},
	{
		ID:   "subject_reviewer",
		Name: "Subject Reviewer",
		Prompt: `Review the identified themes and concepts:
1. Verify accuracy of interpretations
2. Suggest age-appropriate alternatives
3. Identify any misconceptions
4. Recommend additional context where needed
Provide a detailed review with specific suggestions.`,
	},
	{
		ID:   "case_analyst",
		Name: "Case Analyst",
		Prompt: `Break down the story into its components:
1. Setting and environment
2. Main characters and their roles
3. Key plot points
4. Conflict and resolution
5. Character development
Identify any complex scenarios that need simplification.`,
	},
	{
		ID:   "argument_analyzer",
		Name: "Argument Analyzer",
		Prompt: `Analyze the logical structure:
1. Main arguments or messages
2. Supporting points
3. Cause and effect relationships
4. Complex reasoning that needs simplification
Provide suggestions for making the logic more accessible.`,
	},
	{
		ID:   "development_analyst",
		Name: "Development Analyst",
		Prompt: `Assess developmental appropriateness:
1. Age-appropriate content
2. Emotional complexity
3. Cognitive demands
4. Social and moral lessons
Provide recommendations for making the content suitable for the target age group.`,
	},
	{
		ID:   "content_aggregator",
		Name: "Content Aggregator",
		Prompt: `Compile and synthesize all expert analyses:
1. Create a comprehensive overview
2. Identify common themes
3. Highlight key simplification needs
4. Prioritize recommendations
Provide a clear, structured summary of all expert inputs.`,
	},
	{
		ID:   "content_moderator",
		Name: "Content Moderator",
		Prompt: `Review for appropriateness:
1. Identify potentially sensitive content
2. Suggest appropriate modifications
3. Ensure cultural sensitivity
4. Check for any problematic themes
Provide specific recommendations for content moderation.`,
	},
	{
		ID:   "spoken_language_expert",
		Name: "Spoken Language Expert",
		Prompt: `Analyze language patterns:
1. Natural speech patterns
2. Dialogue effectiveness
3. Conversational flow
4. Engagement level
Suggest improvements for more engaging and natural dialogue.`,
	},
	{
		ID:   "proofreader",
		Name: "Proofreader",
		Prompt: `Review for clarity and correctness:
1. Grammar and punctuation
2. Sentence structure
3. Clarity of expression
4. Consistency in style
Provide specific suggestions for improvement.`,
	},
	{
		ID:   "editor",
		Name: "Editor",
		Prompt: `Make final adjustments:
1. Overall flow and pacing
2. Character voice consistency
3. Narrative engagement
4. Age-appropriate language
Provide final recommendations for the complete text.`,
	},
}

// Roles returns the panel in the order it is consulted. The slice is a copy.
func Roles() []Role {
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}
