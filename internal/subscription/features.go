package subscription

// Plan feature identifiers.
const (
	FeatureAIColdCalling          = "ai_cold_calling"
	FeatureLeadScoring            = "lead_scoring"
	FeatureLeadDataTracking       = "lead_data_tracking"
	FeatureEmailCampaigns         = "email_campaigns"
	FeatureScriptEnhancements     = "ai_agent_script_enhancements"
	FeatureRAGKnowledgeBase       = "rag_knowledge_base"
	FeatureFollowupCallRecording  = "followup_call_recording"
	FeatureCallTranscriptAnalysis = "call_transcript_analysis"
)

var basicFeatures = []string{
	FeatureAIColdCalling,
	FeatureLeadScoring,
	FeatureLeadDataTracking,
	FeatureEmailCampaigns,
}

var goldFeatures = append(append([]string{}, basicFeatures...),
	FeatureScriptEnhancements,
	FeatureRAGKnowledgeBase,
	FeatureFollowupCallRecording,
	FeatureCallTranscriptAnalysis,
)

// HasFeatureAccess reports whether planType includes feature.
func HasFeatureAccess(planType, feature string) bool {
	var features []string
	switch planType {
	case "basic":
		features = basicFeatures
	case "gold":
		features = goldFeatures
	default:
		return false
	}
	for _, f := range features {
		if f == feature {
			return true
		}
	}
	return false
}

// Features lists every known feature, basic plan features first.
func Features() []string {
	return append([]string{}, goldFeatures...)
}
