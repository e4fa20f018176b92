package mcpserver

// NoteFormatContract describes the Markdown note format stored in the vault
// and the fields the tools accept.
const NoteFormatContract = `# notegraph Note Format

Each note is one Markdown file named ` + "`<id>.md`" + ` in the vault root.
Notes created through tools get a generated id; never choose one yourself.

## Structure

` + "```" + `markdown
---
id: 7f1c2e1a-4f0b-4c43-9d7e-1f5e2b9c8a10
title: Cache eviction under memory pressure
subject: idea                  # paper, idea, plain-note or a custom subject
tags:
  - caching
  - memory
status: doing                  # OPTIONAL free-form
priority: 2                    # OPTIONAL integer
due_date: 2025-02-01           # OPTIONAL YYYY-MM-DD
props:                         # OPTIONAL subject-specific fields
  link: https://example.org/paper
created_at: 2025-01-15T10:00:00Z
updated_at: 2025-01-16T08:30:00Z
---

# Cache eviction under memory pressure

## Problem

What goes wrong and for whom.

## Solution

What was done about it.

## Limit

Where the solution stops working. Other notes whose problem matches this
text are suggested as follow-ups.

## Details

Anything else. Images: ![diagram](/attachments/diagram.png)
` + "```" + `

## Rules

1. **Problem and Solution are required.** Limit and Details are optional.
2. **Title** defaults to the first sentence of the problem (at most 60 characters).
3. **Relations are computed, not written.** Related notes come from shared words
   between problem, solution and limit texts. Write them in plain, specific terms
   so the overlap is meaningful.
4. **Tags** are free text; duplicates and blanks are dropped.
5. **Images** are added with the attach_image tool and referenced with the
   absolute ` + "`/attachments/<file>`" + ` path it returns.
6. **Encoding** is UTF-8.
`
