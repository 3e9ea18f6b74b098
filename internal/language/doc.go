// Package language maps the language values returned by lookup services
// (ISO 639 codes, English names, regional BCP 47 tags) onto the short tags
// stored on bibliographic records.
package language
