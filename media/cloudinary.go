// Package media resolves listing image URLs into thumbnail URLs.
package media

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"go.uber.org/zap"
)

const deliveryHost = "res.cloudinary.com"

var versionSegment = regexp.MustCompile(`^v\d+$`)

// Cloudinary rewrites images hosted on the configured cloud into a resized
// delivery URL. Images hosted elsewhere are returned unchanged.
type Cloudinary struct {
	cld            *cloudinary.Cloudinary
	transformation string
	log            *zap.Logger
}

func NewCloudinary(cloudinaryURL, transformation string, log *zap.Logger) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true

	return &Cloudinary{
		cld:            cld,
		transformation: transformation,
		log:            log.Named("media"),
	}, nil
}

func (c *Cloudinary) CloudName() string {
	return c.cld.Config.Cloud.CloudName
}

func (c *Cloudinary) Thumbnail(imageURL string) string {
	publicID, ok := PublicID(imageURL, c.CloudName())
	if !ok {
		return imageURL
	}

	img, err := c.cld.Image(publicID)
	if err != nil {
		c.log.Warn("building thumbnail asset", zap.String("public_id", publicID), zap.Error(err))
		return imageURL
	}
	img.Transformation = c.transformation

	thumb, err := img.String()
	if err != nil {
		c.log.Warn("building thumbnail url", zap.String("public_id", publicID), zap.Error(err))
		return imageURL
	}
	return thumb
}

// PublicID extracts the asset public id from an image delivery URL of the
// given cloud, e.g. https://res.cloudinary.com/demo/image/upload/v17/homes/a.jpg
// yields "homes/a". Existing transformations are dropped.
func PublicID(imageURL, cloudName string) (string, bool) {
	u, err := url.Parse(imageURL)
	if err != nil || u.Host != deliveryHost {
		return "", false
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 4 || parts[0] != cloudName || parts[1] != "image" || parts[2] != "upload" {
		return "", false
	}
	rest := parts[3:]

	// the version marks the end of any transformation segments
	for i, p := range rest {
		if versionSegment.MatchString(p) {
			rest = rest[i+1:]
			break
		}
	}
	for len(rest) > 1 && strings.Contains(rest[0], "_") && strings.Contains(rest[0], ",") {
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return "", false
	}

	id := path.Join(rest...)
	id = strings.TrimSuffix(id, path.Ext(id))
	if id == "" {
		return "", false
	}
	return id, true
}
