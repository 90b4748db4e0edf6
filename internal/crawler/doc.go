// Package crawler holds the shared vocabulary of the film metadata pipeline:
// scrape targets, fetched documents, media records, the error kinds workers
// recover from, and the interfaces the fetcher, stores and publishers satisfy.
package crawler
