package pipeline

import (
	"fmt"
	"strings"

	"github.com/brettboylen/linkedin-agent/models"
)

// DefaultVisionPrompt is sent with post images when no custom prompt is set
const DefaultVisionPrompt = "Analyze this image from a LinkedIn post. Objectively describe the key visual elements, people, charts, text, and any relevant business context. Focus on professional details that would matter for networking engagement. Be concise (50 words or less)."

const (
	defaultBusinessContext = "I am a professional looking to engage with content."
	noPostText             = "[No text content provided]"
	noAnalysisContext      = "[No additional context from images/documents provided]"
	textOnlyAnalysis       = "Analyzed text content only."
	imageAnalysisError     = "Error analyzing image(s)"
)

// AnalysisType tells the comment prompt what the analysis covered
type AnalysisType string

const (
	AnalysisTextOnly AnalysisType = "text_only"
	AnalysisImage    AnalysisType = "image"
)

const commentTemplate = `You are an AI assistant helping me react and comment on LinkedIn posts professionally.
My business context: "%s"

The LinkedIn post text is:
"%s"

%s

Instructions:
1.  First, choose the *single most appropriate* reaction for this post from the following list: [%s]. Consider the post's tone, content and professional context.
2.  Second, generate a short (2-3 sentences), relevant, engaging, and professional comment for this specific post, based *directly* on the post's %s.
3.  Ensure the comment adds value through: a thoughtful question, a related insight, or an authentic connection to the topic.
4.  Use a warm, professional tone that builds rapport. Relate subtly to my business context ONLY if there's a genuine, non-forced connection.
5.  Avoid generic phrases like "Great post!" or "Thanks for sharing!". Focus on specific elements from the post.
6.  Do NOT include hashtags unless they're essential to the conversation.
7.  Do NOT mention being an AI or refer to "analyzing" the post.

Format your response exactly like this:
Reaction: [Your Chosen Reaction]
Comment: [Your Generated Comment]`

// VisionPrompt returns the custom vision prompt or the default
func VisionPrompt(prompts models.CustomPrompts) string {
	if strings.TrimSpace(prompts.VisionPrompt) != "" {
		return prompts.VisionPrompt
	}
	return DefaultVisionPrompt
}

// CommentPrompt assembles the generation prompt. A custom template may use the
// ${postText}, ${businessContext} and ${imageContext} placeholders.
func CommentPrompt(settings models.Settings, postText, imageContext string, analysis AnalysisType) string {
	business := settings.BusinessContext
	if business == "" {
		business = defaultBusinessContext
	}
	if postText == "" {
		postText = noPostText
	}
	if imageContext == "" {
		imageContext = noAnalysisContext
	}

	if custom := settings.CustomPrompts.CommentPrompt; strings.TrimSpace(custom) != "" {
		return strings.NewReplacer(
			"${postText}", postText,
			"${businessContext}", business,
			"${imageContext}", imageContext,
		).Replace(custom)
	}

	instruction := "text content"
	if analysis == AnalysisImage {
		instruction = "image description and text"
	}

	names := make([]string, len(models.Reactions))
	for i, r := range models.Reactions {
		names[i] = string(r)
	}

	return fmt.Sprintf(commentTemplate, business, postText, imageContext, strings.Join(names, ", "), instruction)
}

// imageContext turns an analysis result into prompt context; failed analyses add nothing
func imageContext(analysis string) string {
	if analysis == "" || strings.HasPrefix(analysis, "Error") {
		return ""
	}
	return fmt.Sprintf("Description of image(s) in the post: \"%s\"", analysis)
}
