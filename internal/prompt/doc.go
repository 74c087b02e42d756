// Package prompt builds the provider input for a research report: a persona
// role chosen by report mode, followed by the user's request and the general
// output requirements shared by every report.
package prompt
