// Package prompts contains the text Square15 sends to models.
//
// Prompt text is Go code rather than config files because it is program
// logic: templates use fmt interpolation and can be validated by tests.
// Operators may still replace the system prompt with agent.system_prompt_file.
//
// Convention: each prompt category gets its own file with an exported
// function that accepts the dynamic parts and returns the final string.
package prompts
