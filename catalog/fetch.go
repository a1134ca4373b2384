package catalog

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/youtube/vitess/go/ioutil2"

	"lsts.pt/imc/internal/xdg"
	"lsts.pt/imc/log"
)

// schemaCacheFile is the name IMC.xml is cached under in the IMC home
// directory once fetched.
const schemaCacheFile = "IMC.xml"

// LoadOrFetch reads IMC.xml from the current directory; if absent, it
// fetches the schema over HTTPS from url and caches it under the IMC
// home directory for next time.
func LoadOrFetch(url string) (*Catalog, error) {
	if data, err := os.ReadFile(schemaCacheFile); err == nil {
		return LoadBytes(data)
	}

	cacheDir, err := xdg.IMCDirFile(schemaCacheFile)
	if err == nil {
		if data, err := os.ReadFile(cacheDir); err == nil {
			log.Log.Infof("using cached schema at %s", cacheDir)
			return LoadBytes(data)
		}
	}

	data, err := Fetch(url)
	if err != nil {
		return nil, err
	}
	if cacheDir != "" {
		if err := ioutil2.WriteFileAtomic(cacheDir, data, 0600); err != nil {
			log.Log.Warningf("could not cache fetched schema: %s", err.Error())
		}
	}
	return LoadBytes(data)
}

// Fetch retrieves the IMC XML document over HTTPS.
func Fetch(url string) ([]byte, error) {
	client := http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, schemaErrorf("fetching "+url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, schemaErrorf("fetching "+url, fmt.Errorf("unexpected status %s", resp.Status))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, schemaErrorf("reading response from "+url, err)
	}
	return data, nil
}
