// Package labels provides consistent labeling for fleet resources.
//
// Labels use the hdistcc.io domain prefix. They are informational only:
// fleet membership is decided from node names, never from labels.
package labels
