package identify

import (
	"fmt"
	"strings"

	"medialink/internal/llm"
)

// SystemPrompt frames every identification request.
const SystemPrompt = "You are a helpful assistant that extracts media metadata from filenames. You always respond with a valid JSON array."

const promptTemplate = `Extract media information from the following list of filenames.
These files are from the same folder, so they might share patterns (e.g., same series).
However, the folder might contain a mix of movies and series.
%s
Filenames:
%s

For each file, determine if it's a "movie" or a "series".
- If it's a movie, extract "title" and "year".
- If it's a series, extract "title", "year" (of the series start), "season", and "episode".
- For multi-episode files (e.g., E19-20), return "episode" as a string (e.g., "19-20").
- For multi-season files, return "season" as a string.

Search for the title as it appears on themoviedb.org.

Respond ONLY with a JSON array of objects, one for each filename in the exact same order.
If the series or film is of Russian origin, return the "title" in Russian.

Example Output:
[
  {"type": "movie", "title": "Inception", "year": 2010},
  {"type": "series", "title": "Breaking Bad", "year": 2008, "season": 1, "episode": 5},
  {"type": "series", "title": "Danny Phantom", "year": 2004, "season": 2, "episode": "19-20"}
]
`

// BuildPrompt numbers the filenames and adds the folder as context.
func BuildPrompt(names []string, folder string) string {
	var list strings.Builder
	for i, name := range names {
		if i > 0 {
			list.WriteByte('\n')
		}
		fmt.Fprintf(&list, "%d. %s", i+1, name)
	}
	context := ""
	if folder = strings.TrimSpace(folder); folder != "" && folder != "." {
		context = "\nFolder context: " + folder + "\n"
	}
	return fmt.Sprintf(promptTemplate, context, list.String())
}

func decode(content string, target any) error {
	return llm.DecodeJSON(content, target)
}
