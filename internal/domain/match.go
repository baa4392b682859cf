package domain

// ProfileFields are the researcher attributes used for matching
type ProfileFields struct {
	ResearchFields []string `json:"research_fields"`
	Methods        []string `json:"methods"`
	Tools          []string `json:"tools"`
	Skills         []string `json:"skills,omitempty"`
	Bio            string   `json:"bio,omitempty"`
	Institution    string   `json:"institution,omitempty"`
	Location       string   `json:"location,omitempty"`
	DegreeStatus   string   `json:"degree_status,omitempty"`
}

// PostFields are the opportunity attributes used for matching
type PostFields struct {
	Title        string   `json:"title,omitempty"`
	Description  string   `json:"description,omitempty"`
	Tags         []string `json:"tags"`
	Methods      []string `json:"methods"`
	Tools        []string `json:"tools"`
	Requirements string   `json:"requirements,omitempty"`
	Institution  string   `json:"institution,omitempty"`
	Location     string   `json:"location,omitempty"`
	Remote       bool     `json:"remote,omitempty"`
}

// MatchRequest asks for a profile/post match score
type MatchRequest struct {
	ProfileFields ProfileFields `json:"profileFields"`
	PostFields    PostFields    `json:"postFields"`
}

// MatchScore is the component breakdown of a match
type MatchScore struct {
	KeywordScore   int    `json:"keyword_score"`
	SkillsScore    int    `json:"skills_score"`
	ProximityScore int    `json:"proximity_score"`
	LLMScore       int    `json:"llm_score"`
	OverallScore   int    `json:"overall_score"`
	Reason         string `json:"reason"`
}

// ColdEmailRequest asks for a cold outreach draft
type ColdEmailRequest struct {
	RecipientType      string         `json:"recipient_type"`
	RecipientName      string         `json:"recipient_name" binding:"required"`
	RecipientEmail     string         `json:"recipient_email,omitempty"`
	OpportunityContext string         `json:"opportunity_context"`
	Tone               string         `json:"tone"`
	UserProfile        map[string]any `json:"user_profile,omitempty"`
}

// ColdEmail is a drafted email
type ColdEmail struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
