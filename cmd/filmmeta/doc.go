// Command filmmeta scrapes a fixed list of film pages and writes their
// metadata as one title-sorted JSON or YAML file.
//
// Usage:
//
//	filmmeta -config config.yaml -input movies.csv [-limit N] [-workers N]
//
// Settings not given as flags come from the config file or FILMMETA_*
// environment variables, e.g. FILMMETA_OUTPUT_FORMAT=yaml. The exit status
// is 2 for bad input or configuration and 1 when the batch output could not
// be written.
package main
