package sandbox

import (
	"context"
	"fmt"
)

const defaultSearchResults = 5

const searchScript = `import requests
from bs4 import BeautifulSoup
import json

query = '%s'
url = "https://html.duckduckgo.com/html/"

headers = {
    'User-Agent': 'Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36'
}

response = requests.get(url, params={'q': query}, headers=headers)
soup = BeautifulSoup(response.text, 'html.parser')

results = []
for result in soup.find_all('div', class_='result')[:%d]:
    title_elem = result.find('a', class_='result__a')
    snippet_elem = result.find('a', class_='result__snippet')

    if title_elem:
        results.append({
            'title': title_elem.get_text(strip=True),
            'url': title_elem.get('href', ''),
            'snippet': snippet_elem.get_text(strip=True) if snippet_elem else ''
        })

print(json.dumps(results, indent=2))
`

// WebSearch scrapes DuckDuckGo's HTML endpoint inside the sandbox and
// returns a JSON array of {title, url, snippet} objects as the observation.
func (s *Sandbox) WebSearch(ctx context.Context, query string, numResults int) (string, error) {
	s.logger.Info("Web search: %s", query)

	if numResults <= 0 {
		numResults = defaultSearchResults
	}

	return s.ExecutePython(ctx, searchScriptFor(query, numResults))
}

func searchScriptFor(query string, numResults int) string {
	return fmt.Sprintf(searchScript, pyString(query), numResults)
}
