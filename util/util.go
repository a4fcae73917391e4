package util

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	_ "embed"
	"encoding/pem"
	"fmt"
	"html"
	"regexp"
	"strings"
)

//go:embed version.txt
var embeddedVersion string

type RsaKeyPair struct {
	Private string
	Public  string
}

func GetVersion() string {
	return strings.TrimSpace(embeddedVersion)
}

// UserAgent identifies this implementation on outbound federation requests.
func UserAgent() string {
	return fmt.Sprintf("%s/%s ActivityPub", Name, GetVersion())
}

// NormalizeInput flattens newlines and escapes HTML entities in locally
// authored content before it is stored or federated.
func NormalizeInput(text string) string {
	normalized := strings.Replace(text, "\n", " ", -1)
	normalized = html.EscapeString(normalized)
	return normalized
}

func GeneratePemKeypair() *RsaKeyPair {
	bitSize := 4096

	key, err := rsa.GenerateKey(rand.Reader, bitSize)
	if err != nil {
		panic(err)
	}

	pub := key.Public()

	keyPEM := pem.EncodeToMemory(
		&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		},
	)

	pubPEM := pem.EncodeToMemory(
		&pem.Block{
			Type:  "RSA PUBLIC KEY",
			Bytes: x509.MarshalPKCS1PublicKey(pub.(*rsa.PublicKey)),
		},
	)

	return &RsaKeyPair{Private: string(keyPEM[:]), Public: string(pubPEM[:])}
}

var linkPattern = regexp.MustCompile(`<a[^>]+href="([^"]+)"[^>]*>`)
var markdownLinkPattern = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

// MarkdownLinksToHTML converts Markdown links [text](url) to HTML <a> tags
func MarkdownLinksToHTML(text string) string {
	result := markdownLinkPattern.ReplaceAllStringFunc(text, func(match string) string {
		matches := markdownLinkPattern.FindStringSubmatch(match)
		if len(matches) == 3 {
			linkText := html.EscapeString(matches[1])
			linkURL := html.EscapeString(matches[2])
			return fmt.Sprintf(`<a href="%s" target="_blank" rel="noopener noreferrer">%s</a>`, linkURL, linkText)
		}
		return match
	})

	return result
}

// ExtractLinks returns every URL referenced by the text, both bare
// Markdown links [text](url) and rendered <a href="..."> anchors. Remote
// servers deliver either form depending on how they render mentions.
func ExtractLinks(text string) []string {
	var urls []string

	for _, match := range markdownLinkPattern.FindAllStringSubmatch(text, -1) {
		if len(match) == 3 {
			urls = append(urls, match[2])
		}
	}

	for _, match := range linkPattern.FindAllStringSubmatch(text, -1) {
		if len(match) == 2 {
			urls = append(urls, html.UnescapeString(match[1]))
		}
	}

	return urls
}

// ContainsLink reports whether the text references the given URL, either
// as a raw substring or through an extracted link target.
func ContainsLink(text string, url string) bool {
	if strings.Contains(text, url) {
		return true
	}
	for _, u := range ExtractLinks(text) {
		if u == url {
			return true
		}
	}
	return false
}
