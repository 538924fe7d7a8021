// Package alexa links an Amazon Alexa account through Login with Amazon.
//
// When no client secret is configured the link is simulated: polling
// succeeds after a short delay and discovery returns the household list.
package alexa
