package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/bwmarrin/discordgo"
)

//Poster posts the final image to a Discord channel with a geotag caption.
//Only REST calls are used, no gateway connection is opened.
type Poster struct {
	session   *discordgo.Session
	channelID string
}

//NewPoster 创建Discord发布器
func NewPoster(token, channelID string) (*Poster, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return &Poster{session: s, channelID: channelID}, nil
}

//PostSnapshot uploads the image with a caption carrying the DMS-formatted
//point, an OpenStreetMap link at the chosen zoom and the provider
//attribution.
func (p *Poster) PostSnapshot(imagePath string, point GeoPoint, zoom int, attribution string) error {
	f, err := os.Open(imagePath)
	if err != nil {
		return err
	}
	defer f.Close()

	content := fmt.Sprintf("%s\n<https://www.openstreetmap.org/#map=%d/%.6f/%.6f>",
		point.Fancy(), zoom, point.Lat, point.Lon)
	if attribution != "" {
		content += "\n" + attribution
	}
	ct := mime.TypeByExtension(filepath.Ext(imagePath))
	if ct == "" {
		ct = "image/png"
	}
	_, err = p.session.ChannelMessageSendComplex(p.channelID, &discordgo.MessageSend{
		Content: content,
		Files: []*discordgo.File{{
			Name:        filepath.Base(imagePath),
			ContentType: ct,
			Reader:      f,
		}},
	})
	return err
}
