package mcpserver

// StoryFormatContract describes how Horizon names and lays out story files.
const StoryFormatContract = `# Horizon Story Format

Every card on a Horizon board is one Markdown file in the story directory
configured in horizon.json (` + "`storyDirectory`" + `).

## File names

` + "```" + `
<id>.<title>.md
` + "```" + `

- The stem is split on the first dot: ` + "`PROJ-12.Fix login bug.md`" + ` has id
  ` + "`PROJ-12`" + ` and title ` + "`Fix login bug`" + `.
- A file without a dot in its stem (` + "`notes.md`" + `) has an empty title; the first
  ` + "`# heading`" + ` of the body is shown instead where available.
- File names use forward slashes only when a story lives in a column
  directory (physical boards).

## Columns

- Virtualized boards (` + "`useVirtualization: true`" + `, the default) keep all stories
  flat in the story directory. Column membership lives in
  ` + "`.horizon/<column-slug>.json`" + `, a JSON array of file names.
- Physical boards keep each column as a subdirectory named after the column.
  Moving a story renames the file into the target directory.

## Tags

Tags come from a frontmatter ` + "`tags`" + ` list (or comma-separated string) and
inline ` + "`#tag`" + ` words in the body.

## Example

` + "```" + `markdown
---
tags:
  - auth
---

# Fix login bug

Users with a + in their email cannot sign in. #backend
` + "```" + `
`
