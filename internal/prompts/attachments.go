package prompts

import "fmt"

// AttachmentNote describes a file the user attached. The format verbs are
// file name, media type and human-readable size.
func AttachmentNote(name, mediaType, size string) string {
	return fmt.Sprintf("[Attached: %s (%s, %s)]", name, mediaType, size)
}

// AttachmentText wraps the inlined text of an attachment.
func AttachmentText(name, text string, truncated bool) string {
	suffix := ""
	if truncated {
		suffix = "\n[... truncated]"
	}
	return fmt.Sprintf("--- %s ---\n%s%s\n--- end %s ---", name, text, suffix, name)
}
