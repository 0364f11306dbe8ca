package mention

import (
	"fmt"
	"strings"

	"github.com/alekspetrov/concierge/internal/adapters/gitlab"
)

// buildIssuePrompt assembles the single user message for an issue mention.
func buildIssuePrompt(command string, issue *gitlab.Issue, repoContext string) string {
	var b strings.Builder

	if command != "" {
		fmt.Fprintf(&b, "A user asked the following about an issue:\n\n%s\n\n", command)
	}

	fmt.Fprintf(&b, "# Issue: %s\n\n", issue.Title)
	if issue.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", issue.Description)
	}
	fmt.Fprintf(&b, "State: %s\n", issue.State)
	if len(issue.Labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(issue.Labels, ", "))
	}
	b.WriteString("\n")

	if repoContext != "" {
		fmt.Fprintf(&b, "# Repository context\n\n%s\n", repoContext)
	}

	b.WriteString("Answer the user's request with a concrete summary grounded in the repository. " +
		"Reference specific files and line ranges where relevant.\n")
	return b.String()
}

// buildMRPrompt assembles the single user message for a merge request
// mention. With contribution guidelines present the model is asked for an
// adherence review, otherwise for a general one.
func buildMRPrompt(command string, mr *gitlab.MergeRequest, repoContext, contributing string) string {
	var b strings.Builder

	if command != "" {
		fmt.Fprintf(&b, "A user asked the following about a merge request:\n\n%s\n\n", command)
	}

	fmt.Fprintf(&b, "# Merge request: %s\n\n", mr.Title)
	if mr.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", mr.Description)
	}
	fmt.Fprintf(&b, "State: %s\n", mr.State)
	fmt.Fprintf(&b, "Branches: %s -> %s\n", mr.SourceBranch, mr.TargetBranch)
	if len(mr.Labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(mr.Labels, ", "))
	}
	b.WriteString("\n")

	if repoContext != "" {
		fmt.Fprintf(&b, "# Repository and change context\n\n%s\n", repoContext)
	}

	if contributing != "" {
		fmt.Fprintf(&b, "# Contribution guidelines\n\n%s\n\n", contributing)
		b.WriteString("Review the changes and point out where they deviate from the contribution guidelines above.\n")
	} else {
		b.WriteString("Review the changes and summarise their intent, risks, and anything that needs attention.\n")
	}
	return b.String()
}
